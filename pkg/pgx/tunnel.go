package pgx

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// TunnelConfig describes an SSH bastion the database is reached through.
type TunnelConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PrivateKeyFile string `mapstructure:"privateKeyFile"`
	KnownHostsFile string `mapstructure:"knownHostsFile"`
	// RemoteHost and RemotePort override the database address dialed from
	// the bastion. Empty means the address in the connection string.
	RemoteHost string `mapstructure:"remoteHost"`
	RemotePort int    `mapstructure:"remotePort"`
}

// Tunnel is an open SSH client database connections are dialed through.
type Tunnel struct {
	client *ssh.Client
	remote string
}

// OpenTunnel connects to the bastion. Without a known_hosts file the host key
// is not verified and a warning is logged.
func OpenTunnel(cfg TunnelConfig, logger *zap.Logger) (*Tunnel, error) {
	clientCfg, err := sshClientConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	t := &Tunnel{client: client}
	if cfg.RemoteHost != "" {
		remotePort := cfg.RemotePort
		if remotePort == 0 {
			remotePort = 5432
		}
		t.remote = net.JoinHostPort(cfg.RemoteHost, strconv.Itoa(remotePort))
	}
	logger.Info("ssh tunnel open", zap.String("bastion", addr), zap.String("remote", t.remote))
	return t, nil
}

func sshClientConfig(cfg TunnelConfig, logger *zap.Logger) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if cfg.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("ssh tunnel to %s: no password or private key", cfg.Host)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		hostKey = cb
	} else {
		logger.Warn("ssh host key not verified", zap.String("host", cfg.Host))
	}

	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
	}, nil
}

// DialContext dials addr, or the configured remote address, from the
// bastion. It has the signature of pgconn.DialFunc.
func (t *Tunnel) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if t.remote != "" {
		addr = t.remote
	}
	return t.client.DialContext(ctx, network, addr)
}

func (t *Tunnel) Close() error {
	return t.client.Close()
}
