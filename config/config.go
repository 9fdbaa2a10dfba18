package config

import (
	"fmt"
	"os"
	"time"

	"code.cloudfoundry.org/localip"
	"gopkg.in/yaml.v2"
)

const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 8000
	DefaultIdleTimeout  = 60 * time.Second
	DefaultRedirectCode = 302
)

var defaultConfig = Config{
	Logging: LoggingConfig{
		Level:           "info",
		TimestampFormat: "unix-epoch",
	},
	IdleTimeoutInSeconds: 60,
}

type LoggingConfig struct {
	Level           string `yaml:"level"`
	TimestampFormat string `yaml:"timestamp_format"`
}

type AccessLogConfig struct {
	File string `yaml:"file"`
}

// BlockConfig is the set of directives shared by server and location
// blocks.
type BlockConfig struct {
	Root         string            `yaml:"root"`
	UploadPass   string            `yaml:"upload_pass"`
	Methods      []string          `yaml:"methods"`
	Index        []string          `yaml:"index"`
	Autoindex    bool              `yaml:"autoindex"`
	Redirect     string            `yaml:"redirect"`
	RedirectCode int               `yaml:"redirect_code"`
	ErrorPages   map[int]string    `yaml:"error_pages"`
	BodyLimit    int64             `yaml:"body_limit"`
	CGI          map[string]string `yaml:"cgi"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       uint16 `yaml:"port"`
	ServerName string `yaml:"server_name"`

	BlockConfig `yaml:",inline"`

	Locations    map[string]BlockConfig  `yaml:"locations"`
	VirtualHosts map[string]ServerConfig `yaml:"virtual_hosts"`
}

type Config struct {
	Logging              LoggingConfig   `yaml:"logging"`
	AccessLog            AccessLogConfig `yaml:"access_log"`
	IdleTimeoutInSeconds int             `yaml:"idle_timeout_in_seconds"`

	Servers []ServerConfig `yaml:"servers"`

	Ip string `yaml:"-"`
}

func DefaultConfig() (*Config, error) {
	c := defaultConfig
	return &c, nil
}

func (c *Config) Initialize(configYAML []byte) error {
	return yaml.Unmarshal(configYAML, &c)
}

// Process fills in defaults and validates the loaded tree.
func (c *Config) Process() error {
	if len(c.Servers) == 0 {
		return fmt.Errorf("configuration declares no servers")
	}
	if c.IdleTimeoutInSeconds <= 0 {
		c.IdleTimeoutInSeconds = int(DefaultIdleTimeout / time.Second)
	}

	for i := range c.Servers {
		if err := processServer(&c.Servers[i]); err != nil {
			return err
		}
	}

	ip, err := localip.LocalIP()
	if err != nil {
		return err
	}
	c.Ip = ip

	return nil
}

func processServer(s *ServerConfig) error {
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 && os.Getuid() == 0 {
		s.Port = 80
	} else if s.Port == 0 {
		s.Port = DefaultPort
	}
	if err := processBlock(&s.BlockConfig); err != nil {
		return err
	}
	for path, block := range s.Locations {
		if err := processBlock(&block); err != nil {
			return err
		}
		s.Locations[path] = block
	}
	for name, vhost := range s.VirtualHosts {
		if vhost.ServerName == "" {
			vhost.ServerName = name
		}
		if err := processServer(&vhost); err != nil {
			return err
		}
		s.VirtualHosts[name] = vhost
	}
	return nil
}

func processBlock(b *BlockConfig) error {
	if b.Redirect != "" && b.RedirectCode == 0 {
		b.RedirectCode = DefaultRedirectCode
	}
	for _, m := range b.Methods {
		switch m {
		case "GET", "POST", "DELETE", "HEAD", "PUT", "CONNECT", "OPTIONS", "TRACE", "PATCH":
		default:
			return fmt.Errorf("unknown method in configuration: %q", m)
		}
	}
	return nil
}

// IdleTimeout returns the connection idle timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutInSeconds) * time.Second
}

func InitConfigFromFile(path string) (*Config, error) {
	c, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := c.Initialize(b); err != nil {
		return nil, err
	}

	if err := c.Process(); err != nil {
		return nil, err
	}

	return c, nil
}
