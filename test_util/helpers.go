package test_util

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/c3b5aw/webserv/config"
)

// NewDocRoot creates a temporary document root that lives for the
// current spec.
func NewDocRoot() string {
	dir, err := os.MkdirTemp("", "webserv-docroot")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

// WriteDocFile writes a file under the document root, creating parent
// directories as needed, and returns its absolute path.
func WriteDocFile(root, name, contents string) string {
	path := filepath.Join(root, name)
	Expect(os.MkdirAll(filepath.Dir(path), 0755)).To(Succeed())
	Expect(os.WriteFile(path, []byte(contents), 0644)).To(Succeed())
	return path
}

// ServerConfig returns a single-server configuration rooted at the
// given document root, listening on an ephemeral port.
func ServerConfig(name, root string) *config.Config {
	c, err := config.DefaultConfig()
	Expect(err).NotTo(HaveOccurred())
	c.Servers = []config.ServerConfig{
		{
			Host:       "127.0.0.1",
			ServerName: name,
			BlockConfig: config.BlockConfig{
				Root: root,
			},
		},
	}
	return c
}
