package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/mautops/netops-gin/internal/model"
	"golang.org/x/crypto/ssh"
)

// Transport 与设备的底层字节流
// Output 通道在连接断开或关闭后被关闭
type Transport interface {
	WriteLine(line string) error
	Output() <-chan []byte
	Close() error
}

// Dialer 按设备声明的协议建立传输层连接
type Dialer interface {
	Dial(device *model.DeviceModel, timeout time.Duration) (Transport, error)
}

// NetDialer 默认拨号器,支持 SSH 和 Telnet
type NetDialer struct{}

// Dial 按 protocol 字段选择传输
func (d *NetDialer) Dial(device *model.DeviceModel, timeout time.Duration) (Transport, error) {
	switch device.Protocol {
	case model.ProtocolSSH:
		return dialSSH(device, timeout)
	case model.ProtocolTelnet:
		return dialTelnet(device, timeout)
	default:
		return nil, fmt.Errorf("unsupported protocol %q for device %s", device.Protocol, device.Name)
	}
}

// sshTransport 基于 x/crypto/ssh 的交互式 shell
type sshTransport struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	output  chan []byte
}

func dialSSH(device *model.DeviceModel, timeout time.Duration) (Transport, error) {
	config := &ssh.ClientConfig{
		User: device.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(device.Password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = device.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := device.Address
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "22")
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		if isAuthFailure(err) {
			return nil, &AuthError{Device: device.Name, Err: err}
		}
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 80, 500, modes); err != nil {
		session.Close()
		client.Close()
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	t := &sshTransport{
		client:  client,
		session: session,
		stdin:   stdin,
		output:  make(chan []byte, 64),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *sshTransport) readLoop(r io.Reader) {
	defer close(t.output)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.output <- chunk
		}
		if err != nil {
			return
		}
	}
}

func (t *sshTransport) WriteLine(line string) error {
	_, err := t.stdin.Write([]byte(line + "\n"))
	return err
}

func (t *sshTransport) Output() <-chan []byte { return t.output }

func (t *sshTransport) Close() error {
	t.session.Close()
	return t.client.Close()
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate") ||
		strings.Contains(err.Error(), "permission denied")
}

// telnetTransport 基于裸 TCP 的 Telnet 会话,登录对话在拨号时完成
// IAC 协商一律拒绝:对 DO/WILL 回 WONT/DONT
type telnetTransport struct {
	conn   net.Conn
	output chan []byte
}

const (
	telnetIAC  = 255
	telnetDONT = 254
	telnetDO   = 253
	telnetWONT = 252
	telnetWILL = 251
)

func dialTelnet(device *model.DeviceModel, timeout time.Duration) (Transport, error) {
	addr := device.Address
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, "23")
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &UnreachableError{Device: device.Name, Err: err}
	}

	t := &telnetTransport{conn: conn, output: make(chan []byte, 64)}
	go t.readLoop()

	if err := t.login(device, timeout); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

// login 等待 Username:/Password: 提示并应答
func (t *telnetTransport) login(device *model.DeviceModel, timeout time.Duration) error {
	deadline := time.After(timeout)
	var buf strings.Builder
	sentUser, sentPass := false, false

	for {
		select {
		case chunk, ok := <-t.output:
			if !ok {
				return &UnreachableError{Device: device.Name, Err: errors.New("connection closed during login")}
			}
			buf.Write(chunk)
			text := buf.String()
			if !sentUser && strings.Contains(text, "Username:") {
				if err := t.WriteLine(device.Username); err != nil {
					return &UnreachableError{Device: device.Name, Err: err}
				}
				sentUser = true
			}
			if !sentPass && strings.Contains(text, "Password:") {
				if err := t.WriteLine(device.Password); err != nil {
					return &UnreachableError{Device: device.Name, Err: err}
				}
				sentPass = true
			}
			if sentPass && (strings.Contains(text, ">") || strings.Contains(text, "]")) {
				return nil
			}
			if strings.Contains(text, "Error") || strings.Contains(text, "failed") {
				return &AuthError{Device: device.Name, Err: errors.New("login rejected")}
			}
		case <-deadline:
			if sentPass {
				return &AuthError{Device: device.Name, Err: errors.New("no prompt after password")}
			}
			return &UnreachableError{Device: device.Name, Err: errors.New("login dialog timeout")}
		}
	}
}

func (t *telnetTransport) readLoop() {
	defer close(t.output)
	buf := make([]byte, 4096)
	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			if clean := t.stripIAC(buf[:n]); len(clean) > 0 {
				t.output <- clean
			}
		}
		if err != nil {
			return
		}
	}
}

// stripIAC 去除并拒绝 Telnet 协商序列
func (t *telnetTransport) stripIAC(data []byte) []byte {
	clean := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != telnetIAC {
			clean = append(clean, data[i])
			continue
		}
		if i+2 >= len(data) {
			break
		}
		verb, option := data[i+1], data[i+2]
		switch verb {
		case telnetDO:
			t.conn.Write([]byte{telnetIAC, telnetWONT, option})
		case telnetWILL:
			t.conn.Write([]byte{telnetIAC, telnetDONT, option})
		}
		i += 2
	}
	return clean
}

func (t *telnetTransport) WriteLine(line string) error {
	_, err := t.conn.Write([]byte(line + "\r\n"))
	return err
}

func (t *telnetTransport) Output() <-chan []byte { return t.output }

func (t *telnetTransport) Close() error { return t.conn.Close() }
