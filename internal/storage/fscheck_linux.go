//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs magic numbers for the remote filesystems we care about.
var linuxFSMagic = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
}

func detectFilesystemType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	if name, ok := linuxFSMagic[uint64(st.Type)]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", uint64(st.Type)), nil
}
