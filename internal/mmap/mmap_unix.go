//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	var advice int
	switch pattern {
	case AccessSequential:
		advice = unix.MADV_SEQUENTIAL
	case AccessRandom:
		advice = unix.MADV_RANDOM
	default:
		advice = unix.MADV_NORMAL
	}

	// madvise needs page-aligned addresses on Linux; the hint is advisory,
	// so alignment failures are ignored.
	if err := unix.Madvise(data, advice); err != nil && err != unix.EINVAL {
		return err
	}
	return nil
}
