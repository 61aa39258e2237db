/*
 *   Copyright (c) 2025 Vecble
 *   All rights reserved.

 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:

 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.

 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 */

// Command flatkv-server exposes a single flatkv file over a small
// RESP subset, the same shape as the teacher's pebble-backed Redis
// server, with the store swapped out and a global lock added since a
// *flatkv.Store (unlike pebble.DB) does its own writes without any
// internal synchronization.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/vecble/flatkv"
	"github.com/vecble/flatkv/internal/stats"
)

var (
	store   *flatkv.Store
	lock    sync.RWMutex
	counts  = stats.New()
	log     *zap.Logger
)

func main() {
	path := flag.String("path", "flatkv_data", "path to the flatkv file")
	addr := flag.String("addr", ":6380", "listen address")
	flag.Parse()

	var err error
	log, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flatkv-server: logger init:", err)
		os.Exit(1)
	}
	defer log.Sync()

	store, err = flatkv.Open(*path, flatkv.WithLogger(log))
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer store.Close()

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Fatal("listen", zap.Error(err))
	}
	log.Info("flatkv-server listening", zap.String("addr", *addr), zap.String("path", *path))

	sigCh := make(chan os.Signal, 1)
	quitCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	var wg sync.WaitGroup
	go func() {
		<-sigCh
		log.Info("shutting down")
		close(quitCh)
		listener.Close()
		wg.Wait()
		lock.Lock()
		store.Close()
		lock.Unlock()
		log.Info("shutdown complete")
		os.Exit(0)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-quitCh:
				return
			default:
				log.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		wg.Add(1)
		go handleConnection(conn, &wg)
	}
}

func handleConnection(conn net.Conn, wg *sync.WaitGroup) {
	defer func() {
		conn.Close()
		wg.Done()
	}()

	reader := bufio.NewReader(conn)
	for {
		cmd, args, err := parseRESP(reader)
		if err != nil {
			conn.Write([]byte("-ERR parse error\r\n"))
			return
		}
		counts.Incr(cmd)
		response := handleCommand(cmd, args)
		if _, err := conn.Write([]byte(response)); err != nil {
			return
		}
	}
}

// parseRESP reads one command: either a bare line of whitespace-
// separated tokens, or a RESP array of bulk strings.
func parseRESP(reader *bufio.Reader) (string, []string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", nil, err
	}
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, "*") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			return "", nil, fmt.Errorf("empty command")
		}
		return strings.ToLower(parts[0]), parts[1:], nil
	}

	numArgs := 0
	fmt.Sscanf(line, "*%d", &numArgs)

	args := make([]string, 0, numArgs)
	for i := 0; i < numArgs; i++ {
		if _, err := reader.ReadString('\n'); err != nil { // bulk length, unused
			return "", nil, err
		}
		arg, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		args = append(args, strings.TrimSpace(arg))
	}
	if len(args) == 0 {
		return "", nil, fmt.Errorf("invalid command format")
	}
	return strings.ToLower(args[0]), args[1:], nil
}

func handleCommand(cmd string, args []string) string {
	switch cmd {
	case "ping":
		return "+PONG\r\n"

	case "set":
		if len(args) != 2 {
			return "-ERR wrong number of arguments for 'set' command\r\n"
		}
		lock.Lock()
		err := store.Put([]byte(args[0]), []byte(args[1]), true)
		lock.Unlock()
		if err != nil {
			return "-ERR " + err.Error() + "\r\n"
		}
		return "+OK\r\n"

	case "setnx":
		if len(args) != 2 {
			return "-ERR wrong number of arguments for 'setnx' command\r\n"
		}
		lock.Lock()
		err := store.Put([]byte(args[0]), []byte(args[1]), false)
		lock.Unlock()
		if flatkv.Is(err, flatkv.ErrAlreadyExists) {
			return ":0\r\n"
		}
		if err != nil {
			return "-ERR " + err.Error() + "\r\n"
		}
		return ":1\r\n"

	case "get":
		if len(args) != 1 {
			return "-ERR wrong number of arguments for 'get' command\r\n"
		}
		lock.Lock()
		res, err := store.Get([]byte(args[0]))
		lock.Unlock()
		if flatkv.Is(err, flatkv.ErrNotFound) {
			return "$-1\r\n"
		}
		if err != nil {
			return "-ERR " + err.Error() + "\r\n"
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", len(res), res)

	case "exists":
		if len(args) != 1 {
			return "-ERR wrong number of arguments for 'exists' command\r\n"
		}
		lock.Lock()
		ok, err := store.Has([]byte(args[0]))
		lock.Unlock()
		if err != nil {
			return "-ERR " + err.Error() + "\r\n"
		}
		if ok {
			return ":1\r\n"
		}
		return ":0\r\n"

	case "rename":
		if len(args) != 2 {
			return "-ERR wrong number of arguments for 'rename' command\r\n"
		}
		lock.Lock()
		err := store.Rename([]byte(args[0]), []byte(args[1]))
		lock.Unlock()
		if flatkv.Is(err, flatkv.ErrNotFound) {
			return "-ERR no such key\r\n"
		}
		if err != nil {
			return "-ERR " + err.Error() + "\r\n"
		}
		return "+OK\r\n"

	case "info":
		lock.RLock()
		snap := counts.Snapshot()
		lock.RUnlock()
		var b strings.Builder
		for k, v := range snap {
			fmt.Fprintf(&b, "%s:%d\r\n", k, v)
		}
		return fmt.Sprintf("$%d\r\n%s\r\n", b.Len(), b.String())

	default:
		return "-ERR unknown command\r\n"
	}
}
