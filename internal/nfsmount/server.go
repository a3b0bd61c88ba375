package nfsmount

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// Server manages the NFS server lifecycle.
type Server struct {
	listener net.Listener
	port     int
}

// NewServer starts an NFS server on an ephemeral port backed by the given filesystem.
func NewServer(fs billy.Filesystem) (*Server, error) {
	return Listen("127.0.0.1:0", fs)
}

// Listen starts an NFS server on addr.
func Listen(addr string, fs billy.Filesystem) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "nfs listen")
	}
	port := listener.Addr().(*net.TCPAddr).Port

	handler := nfshelper.NewNullAuthHandler(fs)
	cacheHelper := nfshelper.NewCachingHandler(handler, 4096)

	go func() {
		_ = nfs.Serve(listener, cacheHelper)
	}()

	return &Server{listener: listener, port: port}, nil
}

// Port returns the TCP port the NFS server is listening on.
func (s *Server) Port() int {
	return s.port
}

// Close stops the NFS server by closing the listener.
func (s *Server) Close() error {
	return s.listener.Close()
}

// MountOptions returns the -o argument for mounting a read-only export on
// port, followed by any extra options.
func MountOptions(goos string, port int, extra []string) (string, error) {
	var opts string
	switch goos {
	case "darwin":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,locallocks,noresvport,rdonly", port, port)
	case "linux":
		opts = fmt.Sprintf("port=%d,mountport=%d,vers=3,tcp,local_lock=all,nolock,ro", port, port)
	default:
		return "", errors.Newf("unsupported OS: %s", goos)
	}
	for _, o := range extra {
		if o = strings.TrimSpace(o); o != "" {
			opts += "," + o
		}
	}
	return opts, nil
}

// Mount calls the system mount command to mount the NFS server at mountpoint.
// Requires sudo.
func Mount(port int, mountpoint string, extra []string) error {
	opts, err := MountOptions(runtime.GOOS, port, extra)
	if err != nil {
		return err
	}
	cmd := exec.Command("sudo", "mount", "-t", "nfs", "-o", opts, "localhost:/", mountpoint)
	cmd.Stdin = nil // sudo may need terminal for password
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "mount failed\n%s", string(output))
	}
	return nil
}

// Unmount calls the system unmount command on the mountpoint.
func Unmount(mountpoint string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		// Try diskutil first (no sudo needed for user NFS mounts)
		cmd = exec.Command("diskutil", "unmount", mountpoint)
		if err := cmd.Run(); err == nil {
			return nil
		}
		cmd = exec.Command("sudo", "umount", mountpoint)
	default:
		cmd = exec.Command("sudo", "umount", mountpoint)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "unmount failed\n%s", string(output))
	}
	return nil
}
