//go:build !gpu

package probe

type nativeProber struct{}

func (nativeProber) ProbeWebGPU() (bool, error) {
	return false, nil
}

func (nativeProber) ProbeWebGL() (bool, error) {
	return false, nil
}
