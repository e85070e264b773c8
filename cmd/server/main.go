package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/vectorplayer/internal/app"
	"github.com/sharetube/vectorplayer/internal/playback"
	"github.com/sharetube/vectorplayer/internal/source"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	frameInterval = configVar[time.Duration]{
		envKey:       "SERVER_FRAME_INTERVAL",
		flagKey:      "frame-interval",
		defaultValue: playback.DefaultFrameInterval,
	}
	fetchTimeout = configVar[time.Duration]{
		envKey:       "SERVER_FETCH_TIMEOUT",
		flagKey:      "fetch-timeout",
		defaultValue: source.DefaultFetchTimeout,
	}
	maxPayloadBytes = configVar[int64]{
		envKey:       "SERVER_MAX_PAYLOAD_BYTES",
		flagKey:      "max-payload-bytes",
		defaultValue: 16 << 20,
	}
	payloadCacheTTL = configVar[time.Duration]{
		envKey:       "SERVER_PAYLOAD_CACHE_TTL",
		flagKey:      "payload-cache-ttl",
		defaultValue: 24 * time.Hour,
	}
	assetsDir = configVar[string]{
		envKey:       "SERVER_ASSETS_DIR",
		flagKey:      "assets-dir",
		defaultValue: "",
	}
	fetchAllowedHosts = configVar[[]string]{
		envKey:       "SERVER_FETCH_ALLOWED_HOSTS",
		flagKey:      "fetch-allowed-hosts",
		defaultValue: nil,
	}
	allowedOrigins = configVar[[]string]{
		envKey:       "SERVER_ALLOWED_ORIGINS",
		flagKey:      "allowed-origins",
		defaultValue: nil,
	}
	disableGPU = configVar[bool]{
		envKey:       "SERVER_DISABLE_GPU",
		flagKey:      "disable-gpu",
		defaultValue: false,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
	redisDB = configVar[int]{
		envKey:       "REDIS_DB",
		flagKey:      "redis-db",
		defaultValue: 0,
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Duration(frameInterval.flagKey, frameInterval.defaultValue, "Worker frame timer interval")
	pflag.Duration(fetchTimeout.flagKey, fetchTimeout.defaultValue, "Timeout for fetching animation payloads")
	pflag.Int64(maxPayloadBytes.flagKey, maxPayloadBytes.defaultValue, "Maximum fetched payload size, 0 for no limit")
	pflag.Duration(payloadCacheTTL.flagKey, payloadCacheTTL.defaultValue, "Payload cache TTL")
	pflag.String(assetsDir.flagKey, assetsDir.defaultValue, "Directory path locators are served from, empty disables path locators")
	pflag.StringSlice(fetchAllowedHosts.flagKey, fetchAllowedHosts.defaultValue, "Hosts http(s) locators may fetch from, empty disables remote fetches")
	pflag.StringSlice(allowedOrigins.flagKey, allowedOrigins.defaultValue, "Origins allowed to open worker sessions, empty means same-origin only")
	pflag.Bool(disableGPU.flagKey, disableGPU.defaultValue, "Skip GPU capability probing")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Int(redisDB.flagKey, redisDB.defaultValue, "Redis database")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(frameInterval.flagKey, frameInterval.envKey)
	viper.BindEnv(fetchTimeout.flagKey, fetchTimeout.envKey)
	viper.BindEnv(maxPayloadBytes.flagKey, maxPayloadBytes.envKey)
	viper.BindEnv(payloadCacheTTL.flagKey, payloadCacheTTL.envKey)
	viper.BindEnv(assetsDir.flagKey, assetsDir.envKey)
	viper.BindEnv(fetchAllowedHosts.flagKey, fetchAllowedHosts.envKey)
	viper.BindEnv(allowedOrigins.flagKey, allowedOrigins.envKey)
	viper.BindEnv(disableGPU.flagKey, disableGPU.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)
	viper.BindEnv(redisDB.flagKey, redisDB.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(frameInterval.flagKey, frameInterval.defaultValue)
	viper.SetDefault(fetchTimeout.flagKey, fetchTimeout.defaultValue)
	viper.SetDefault(maxPayloadBytes.flagKey, maxPayloadBytes.defaultValue)
	viper.SetDefault(payloadCacheTTL.flagKey, payloadCacheTTL.defaultValue)
	viper.SetDefault(assetsDir.flagKey, assetsDir.defaultValue)
	viper.SetDefault(fetchAllowedHosts.flagKey, fetchAllowedHosts.defaultValue)
	viper.SetDefault(allowedOrigins.flagKey, allowedOrigins.defaultValue)
	viper.SetDefault(disableGPU.flagKey, disableGPU.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)
	viper.SetDefault(redisDB.flagKey, redisDB.defaultValue)

	config := &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		FrameInterval:     viper.GetDuration(frameInterval.flagKey),
		FetchTimeout:      viper.GetDuration(fetchTimeout.flagKey),
		MaxPayloadBytes:   viper.GetInt64(maxPayloadBytes.flagKey),
		PayloadCacheTTL:   viper.GetDuration(payloadCacheTTL.flagKey),
		AssetsDir:         viper.GetString(assetsDir.flagKey),
		FetchAllowedHosts: viper.GetStringSlice(fetchAllowedHosts.flagKey),
		AllowedOrigins:    viper.GetStringSlice(allowedOrigins.flagKey),
		DisableGPU:        viper.GetBool(disableGPU.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
		RedisDB:           viper.GetInt(redisDB.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
