package router_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/clock/fakeclock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/tedsuo/ifrit"
	"golang.org/x/sys/unix"

	"github.com/c3b5aw/webserv/accesslog"
	"github.com/c3b5aw/webserv/config"
	"github.com/c3b5aw/webserv/errorwriter"
	"github.com/c3b5aw/webserv/handlers"
	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/registry"
	"github.com/c3b5aw/webserv/router"
	"github.com/c3b5aw/webserv/test_util"
)

// rawResponse is one parsed wire response.
type rawResponse struct {
	StatusLine string
	Headers    map[string]string
	Body       string
}

// readResponse consumes exactly one response off the wire, using the
// emitted Content-Length to frame the body and its trailing CRLF.
func readResponse(r *bufio.Reader) (*rawResponse, error) {
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	resp := &rawResponse{
		StatusLine: strings.TrimSuffix(statusLine, "\r\n"),
		Headers:    make(map[string]string),
	}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSuffix(line, "\r\n")
		if line == "" {
			break
		}
		name, value, found := strings.Cut(line, ": ")
		if found {
			resp.Headers[strings.ToLower(name)] = value
		}
	}

	length, err := strconv.Atoi(resp.Headers["content-length"])
	if err != nil {
		return nil, err
	}
	body := make([]byte, length+2)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	resp.Body = strings.TrimSuffix(string(body), "\r\n")
	return resp, nil
}

var _ = Describe("Router", func() {
	var (
		c       *config.Config
		root    string
		ws      *router.Router
		process ifrit.Process
		addr    string
		clk     clock.Clock
	)

	startRouter := func(controlFD int) {
		logger := test_util.NewTestLogger("router")
		reg := registry.NewRouteRegistry(logger.Logger, c)
		pipeline := handlers.NewPipeline(logger.Logger, reg, errorwriter.NewErrorWriter())
		ws = router.NewRouter(logger.Logger, c, reg, pipeline,
			&accesslog.NullAccessLogger{}, clk, controlFD)

		process = ifrit.Invoke(ws)
		Eventually(process.Ready()).Should(BeClosed())
		addr = fmt.Sprintf("127.0.0.1:%d", ws.Ports()["main"])
		DeferCleanup(func() {
			process.Signal(os.Interrupt)
			Eventually(process.Wait(), "5s").Should(Receive())
		})
	}

	dial := func() net.Conn {
		conn, err := net.Dial("tcp", addr)
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			conn.Close()
		})
		return conn
	}

	roundTrip := func(raw string) *rawResponse {
		conn := dial()
		_, err := conn.Write([]byte(raw))
		Expect(err).ToNot(HaveOccurred())

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		resp, err := readResponse(bufio.NewReader(conn))
		Expect(err).ToNot(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		clk = clock.NewClock()
		root = test_util.NewDocRoot()
		c = test_util.ServerConfig("main", root)
		c.Servers[0].Index = []string{"index.html"}
	})

	Describe("request handling", func() {
		BeforeEach(func() {
			test_util.WriteDocFile(root, "index.html", "hi")
			startRouter(-1)
		})

		It("serves the index file", func() {
			resp := roundTrip("GET / HTTP/1.1\r\nHost: x\r\n\r\n")
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 200 OK"))
			Expect(resp.Headers["content-length"]).To(Equal("2"))
			Expect(resp.Headers["server"]).To(Equal(message.ServerTag))
			Expect(resp.Body).To(Equal("hi"))
		})

		It("answers 404 with the built-in page for a missing path", func() {
			resp := roundTrip("GET /missing HTTP/1.1\r\nHost: x\r\n\r\n")
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 404 Not Found"))
			Expect(resp.Body).To(ContainSubstring("<h1>404 Not Found</h1>"))
		})

		It("answers 501 to a plain POST", func() {
			resp := roundTrip("POST /u HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nContent-Type: text/plain\r\n\r\nhello")
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 501 Not Implemented"))
		})

		It("answers 501 to a chunked POST after dechunking", func() {
			resp := roundTrip("POST /x HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\nContent-Type: text/plain\r\n\r\n5\r\nhello\r\n0\r\n\r\n")
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 501 Not Implemented"))
		})

		It("deletes an existing file with 204", func() {
			test_util.WriteDocFile(root, "doomed.txt", "x")
			resp := roundTrip("DELETE /doomed.txt HTTP/1.1\r\nHost: x\r\n\r\n")
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 204 No Content"))
			Expect(resp.Headers["content-length"]).To(Equal("0"))
		})

		It("assembles a request split across many writes", func() {
			conn := dial()
			raw := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
			for _, b := range []byte(raw) {
				_, err := conn.Write([]byte{b})
				Expect(err).ToNot(HaveOccurred())
			}

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			resp, err := readResponse(bufio.NewReader(conn))
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Body).To(Equal("hi"))
		})

		It("keeps the connection alive between requests", func() {
			conn := dial()
			reader := bufio.NewReader(conn)
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			for i := 0; i < 2; i++ {
				_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
				Expect(err).ToNot(HaveOccurred())
				resp, err := readResponse(reader)
				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Body).To(Equal("hi"))
				Expect(resp.Headers["connection"]).To(Equal("keep-alive"))
			}
		})

		It("closes the connection when the client asks for it", func() {
			conn := dial()
			_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\nConnection: close\r\n\r\n"))
			Expect(err).ToNot(HaveOccurred())

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			reader := bufio.NewReader(conn)
			resp, err := readResponse(reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Headers["connection"]).To(Equal("close"))

			_, err = reader.ReadByte()
			Expect(err).To(Equal(io.EOF))
		})

		It("answers 414 to an oversized target and closes", func() {
			conn := dial()
			raw := "GET /" + strings.Repeat("A", 8200) + " HTTP/1.1\r\nHost: x\r\n\r\n"
			_, err := conn.Write([]byte(raw))
			Expect(err).ToNot(HaveOccurred())

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			reader := bufio.NewReader(conn)
			resp, err := readResponse(reader)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 414 Request-URI Too Long"))
			Expect(resp.Headers["connection"]).To(Equal("close"))

			_, err = reader.ReadByte()
			Expect(err).To(Equal(io.EOF))
		})

		It("redirects when the block configures it", func() {
			other := test_util.NewDocRoot()
			cRedir := test_util.ServerConfig("redir", other)
			cRedir.Servers[0].Redirect = "/new"
			cRedir.Servers[0].RedirectCode = 301

			logger := test_util.NewTestLogger("router-redirect")
			reg := registry.NewRouteRegistry(logger.Logger, cRedir)
			pipeline := handlers.NewPipeline(logger.Logger, reg, errorwriter.NewErrorWriter())
			redirRouter := router.NewRouter(logger.Logger, cRedir, reg, pipeline,
				&accesslog.NullAccessLogger{}, clk, -1)

			redirProcess := ifrit.Invoke(redirRouter)
			Eventually(redirProcess.Ready()).Should(BeClosed())
			DeferCleanup(func() {
				redirProcess.Signal(os.Interrupt)
				Eventually(redirProcess.Wait(), "5s").Should(Receive())
			})

			conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", redirRouter.Ports()["redir"]))
			Expect(err).ToNot(HaveOccurred())
			defer conn.Close()
			_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
			Expect(err).ToNot(HaveOccurred())

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			resp, err := readResponse(bufio.NewReader(conn))
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 301 Moved Permanently"))
			Expect(resp.Headers["location"]).To(Equal("/new"))
		})
	})

	Describe("graceful shutdown", func() {
		It("drains on a quit control line", func() {
			pipe := make([]int, 2)
			Expect(unix.Pipe(pipe)).To(Succeed())
			DeferCleanup(func() {
				unix.Close(pipe[1])
			})

			logger := test_util.NewTestLogger("router-control")
			reg := registry.NewRouteRegistry(logger.Logger, c)
			pipeline := handlers.NewPipeline(logger.Logger, reg, errorwriter.NewErrorWriter())
			controlled := router.NewRouter(logger.Logger, c, reg, pipeline,
				&accesslog.NullAccessLogger{}, clk, pipe[0])

			controlledProcess := ifrit.Invoke(controlled)
			Eventually(controlledProcess.Ready()).Should(BeClosed())

			_, err := unix.Write(pipe[1], []byte("quit\n"))
			Expect(err).ToNot(HaveOccurred())

			Eventually(controlledProcess.Wait(), "5s").Should(Receive(BeNil()))
		})

		It("ignores unrecognized control lines", func() {
			pipe := make([]int, 2)
			Expect(unix.Pipe(pipe)).To(Succeed())
			DeferCleanup(func() {
				unix.Close(pipe[1])
			})

			logger := test_util.NewTestLogger("router-control")
			reg := registry.NewRouteRegistry(logger.Logger, c)
			pipeline := handlers.NewPipeline(logger.Logger, reg, errorwriter.NewErrorWriter())
			controlled := router.NewRouter(logger.Logger, c, reg, pipeline,
				&accesslog.NullAccessLogger{}, clk, pipe[0])

			controlledProcess := ifrit.Invoke(controlled)
			Eventually(controlledProcess.Ready()).Should(BeClosed())
			DeferCleanup(func() {
				controlledProcess.Signal(os.Interrupt)
				Eventually(controlledProcess.Wait(), "5s").Should(Receive())
			})

			_, err := unix.Write(pipe[1], []byte("status\n"))
			Expect(err).ToNot(HaveOccurred())
			Consistently(controlledProcess.Wait(), "500ms").ShouldNot(Receive())
		})

		It("stops on an interrupt signal", func() {
			startRouter(-1)
			process.Signal(os.Interrupt)
			Eventually(process.Wait(), "5s").Should(Receive(BeNil()))
		})
	})

	Describe("idle sweep", func() {
		var fakeClk *fakeclock.FakeClock

		BeforeEach(func() {
			fakeClk = fakeclock.NewFakeClock(time.Now())
			clk = fakeClk
			startRouter(-1)
		})

		It("closes connections that stay silent past the timeout", func() {
			conn := dial()

			// A partial request registers the connection without ever
			// completing it.
			_, err := conn.Write([]byte("GET"))
			Expect(err).ToNot(HaveOccurred())
			time.Sleep(200 * time.Millisecond)

			fakeClk.Increment(61 * time.Second)

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			buf := make([]byte, 1)
			_, err = conn.Read(buf)
			Expect(err).To(Equal(io.EOF))
		})

		It("keeps connections that show activity within the timeout", func() {
			conn := dial()
			_, err := conn.Write([]byte("GET"))
			Expect(err).ToNot(HaveOccurred())
			time.Sleep(200 * time.Millisecond)

			fakeClk.Increment(30 * time.Second)
			_, err = conn.Write([]byte(" /"))
			Expect(err).ToNot(HaveOccurred())
			time.Sleep(200 * time.Millisecond)

			fakeClk.Increment(40 * time.Second)
			time.Sleep(200 * time.Millisecond)

			// Past the original deadline but within the refreshed one:
			// finishing the request must still work.
			_, err = conn.Write([]byte(" HTTP/1.1\r\nHost: x\r\n\r\n"))
			Expect(err).ToNot(HaveOccurred())

			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			resp, readErr := readResponse(bufio.NewReader(conn))
			Expect(readErr).ToNot(HaveOccurred())
			Expect(resp.StatusLine).To(Equal("HTTP/1.1 404 Not Found"))
		})
	})
})
