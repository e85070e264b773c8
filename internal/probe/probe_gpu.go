//go:build gpu

package probe

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/glfw/v3.3/glfw"
)

type nativeProber struct{}

func (nativeProber) ProbeWebGPU() (bool, error) {
	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		return false, fmt.Errorf("failed to create wgpu instance")
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to request adapter: %w", err)
	}
	defer adapter.Release()

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{Label: "probe"})
	if err != nil {
		return false, fmt.Errorf("failed to request device: %w", err)
	}
	device.Release()

	return true, nil
}

func (nativeProber) ProbeWebGL() (bool, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := glfw.Init(); err != nil {
		return false, fmt.Errorf("failed to init glfw: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.OpenGLESAPI)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 0)

	win, err := glfw.CreateWindow(1, 1, "probe", nil, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create gl context: %w", err)
	}
	win.Destroy()

	return true, nil
}
