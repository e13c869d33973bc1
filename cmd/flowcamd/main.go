package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/abihf/flowimg/capture"
	"github.com/abihf/flowimg/config"
	"github.com/abihf/flowimg/internal/logging"
	"github.com/abihf/flowimg/protocol"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"

	_ "github.com/abihf/flowimg/capture/synthetic"
)

var conf = config.Load()

func main() {
	logging.Setup(conf.LogLevel)
	if err := serve(); err != nil {
		slog.Error("flowcamd: exiting", "error", err)
		os.Exit(1)
	}
}

func serve() error {
	if isAlreadyRun(conf.PidFile) {
		return errors.New("already run")
	}

	backend, err := capture.New(conf.Backend)
	if err != nil {
		return err
	}
	p, err := newPipeline(backend, conf)
	if err != nil {
		return err
	}

	if err := writeLockFile(conf.PidFile); err != nil {
		return errors.Wrap(err, "Can not write pid file")
	}
	defer os.Remove(conf.PidFile)

	os.Remove(conf.Socket)
	ln, err := net.Listen("unix", conf.Socket)
	if err != nil {
		return errors.Wrap(err, "Listen error")
	}
	defer ln.Close()
	os.Chmod(conf.Socket, 0666)

	go func() {
		for {
			fd, err := ln.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) {
					slog.Error("flowcamd: accept failed", "error", err)
				}
				return
			}
			go handle(p, fd)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		p.run(ctx, conf.FPS, conf.CPU)
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)
	slog.Info("flowcamd: running", "backend", conf.Backend, "device", conf.Device,
		"width", conf.Width, "height", conf.Height, "fps", conf.FPS, "tensor", conf.Tensor)

	<-ctx.Done()
	slog.Info("flowcamd: shutting down")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	<-stopped
	return p.close()
}

func handle(p runner, c net.Conn) {
	defer c.Close()

	for {
		req, err := protocol.ReadReq(c)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Warn("flowcamd: can not read request", "error", err)
			}
			return
		}

		switch req.Action {
		case protocol.ActionStatus:
			err = protocol.WriteStatusRes(c, p.status())
		default:
			err = protocol.WriteErrorRes(c, errors.Errorf("unknown action %q", req.Action))
		}
		if err != nil {
			slog.Warn("flowcamd: can not write response", "error", err)
			return
		}
	}
}

func isAlreadyRun(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}

	pidStr, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Can not read pid file", "error", err)
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(pidStr)))
	if err != nil {
		slog.Warn("Invalid existing pid file", "error", err)
		return false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func writeLockFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	fmt.Fprintf(f, "%d", os.Getpid())
	return f.Close()
}
