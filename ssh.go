package dirpull

import (
	"context"
	"fmt"
	"net"

	"github.com/alexhunt7/ssher"
	"golang.org/x/crypto/ssh"
)

func OpenSSH(target string) (*ssh.Client, error) {
	sshConfig, hostPort, err := ssher.ClientConfig(target, "")
	if err != nil {
		return nil, err
	}
	sshConfig.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	return ssh.Dial("tcp", hostPort, sshConfig)
}

// sshConn is a connection forwarded through an ssh client it owns.
type sshConn struct {
	net.Conn
	client *ssh.Client
}

func (c *sshConn) Close() error {
	err := c.Conn.Close()
	c.client.Close()
	return err
}

func (c *sshConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

// Dial connects to a dirpull server at addr. When via names an ssh host (an
// ~/.ssh/config alias or user@host[:port]) the TCP stream is forwarded through it,
// which reaches servers bound to the remote loopback.
func Dial(ctx context.Context, addr, via string) (net.Conn, error) {
	if via == "" {
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	}

	client, err := OpenSSH(via)
	if err != nil {
		return nil, fmt.Errorf("ssh %s: %w", via, err)
	}

	conn, err := client.Dial("tcp", addr)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("forward %s via %s: %w", addr, via, err)
	}
	return &sshConn{Conn: conn, client: client}, nil
}
