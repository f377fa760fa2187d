package pupil

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/vmihailenco/msgpack/v5"
)

// request sends one command to Pupil Remote on a fresh REQ socket. REQ
// sockets are unusable after a timeout, so they are never reused.
func request(endpoint string, timeout time.Duration, command string) (string, error) {
	sock, err := newReq(endpoint, timeout)
	if err != nil {
		return "", err
	}
	defer sock.Close()

	if _, err := sock.Send(command, 0); err != nil {
		return "", err
	}
	return sock.Recv(0)
}

// notify sends a notification through Pupil Remote.
func notify(endpoint string, timeout time.Duration, notification map[string]any) error {
	payload, err := msgpack.Marshal(notification)
	if err != nil {
		return err
	}
	sock, err := newReq(endpoint, timeout)
	if err != nil {
		return err
	}
	defer sock.Close()

	subject, _ := notification["subject"].(string)
	if _, err := sock.Send("notify."+subject, zmq4.SNDMORE); err != nil {
		return err
	}
	if _, err := sock.SendBytes(payload, 0); err != nil {
		return err
	}
	_, err = sock.Recv(0)
	return err
}

func newReq(endpoint string, timeout time.Duration) (*zmq4.Socket, error) {
	sock, err := zmq4.NewSocket(zmq4.REQ)
	if err != nil {
		return nil, err
	}
	for _, set := range []func() error{
		func() error { return sock.SetLinger(0) },
		func() error { return sock.SetSndtimeo(timeout) },
		func() error { return sock.SetRcvtimeo(timeout) },
		func() error { return sock.Connect(endpoint) },
	} {
		if err := set(); err != nil {
			_ = sock.Close()
			return nil, err
		}
	}
	return sock, nil
}

type Status struct {
	Remote  string  `json:"remote"`
	Version string  `json:"version,omitempty"`
	Clock   float64 `json:"clock,omitempty"`
	Checked string  `json:"checked"`
}

// Poll queries Pupil Remote every interval and reports its reachability,
// software version and clock until ctx is done.
func Poll(ctx context.Context, endpoint string, interval time.Duration, update func(Status)) {
	if endpoint == "" || update == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	timeout := 900 * time.Millisecond
	if interval < timeout {
		timeout = interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		update(fetchStatus(endpoint, timeout))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func fetchStatus(endpoint string, timeout time.Duration) Status {
	status := Status{Remote: "ok", Checked: time.Now().Format(time.RFC3339)}

	version, err := request(endpoint, timeout, "v")
	if err != nil {
		status.Remote = "unreachable"
		return status
	}
	status.Version = strings.TrimSpace(version)

	clock, err := request(endpoint, timeout, "t")
	if err != nil {
		status.Remote = "error"
		return status
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(clock), 64); err == nil {
		status.Clock = v
	}
	return status
}
