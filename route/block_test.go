package route_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/route"
)

var _ = Describe("Uri", func() {
	DescribeTable("FirstSegment",
		func(uri, want string) {
			Expect(route.Uri(uri).FirstSegment()).To(Equal(route.Uri(want)))
		},
		Entry("root", "/", "/"),
		Entry("single segment", "/files", "/files"),
		Entry("nested path", "/files/a/b.txt", "/files"),
		Entry("empty", "", ""),
	)

	DescribeTable("StripPort",
		func(host, want string) {
			Expect(route.StripPort(host)).To(Equal(want))
		},
		Entry("no port", "example.org", "example.org"),
		Entry("with port", "example.org:8080", "example.org"),
	)

	It("extracts a numeric host port", func() {
		Expect(route.HostPort("example.org:8080")).To(Equal(8080))
		Expect(route.HostPort("example.org")).To(Equal(-1))
		Expect(route.HostPort("example.org:abc")).To(Equal(-1))
	})
})

var _ = Describe("Server", func() {
	var server *route.Server

	BeforeEach(func() {
		server = route.NewServer("main", "127.0.0.1", 8080)
		server.SetRoot("/var/www")
	})

	It("keeps host, port and name from construction", func() {
		Expect(server.Host()).To(Equal("127.0.0.1"))
		Expect(server.Port()).To(Equal(8080))
		Expect(server.Name()).To(Equal("main"))
	})

	It("allows every method until a list is configured", func() {
		Expect(server.MethodAllowed(message.MethodDelete)).To(BeTrue())

		server.AllowMethods(message.MethodGet)
		Expect(server.MethodAllowed(message.MethodGet)).To(BeTrue())
		Expect(server.MethodAllowed(message.MethodDelete)).To(BeFalse())
	})

	It("defaults the redirection code to 302", func() {
		server.SetRedirection("/new", 0)
		Expect(server.RedirectionCode()).To(Equal(message.StatusFound))

		server.SetRedirection("/new", message.StatusMovedPermanently)
		Expect(server.RedirectionCode()).To(Equal(message.StatusMovedPermanently))
	})

	Describe("locations", func() {
		It("matches on the first path segment and falls back to the server", func() {
			files := server.AddLocation("/files")
			Expect(files).NotTo(BeNil())

			Expect(server.BlockFor("/files/a.txt")).To(BeIdenticalTo(route.Block(files)))
			Expect(server.BlockFor("/files")).To(BeIdenticalTo(route.Block(files)))
			Expect(server.BlockFor("/other")).To(BeIdenticalTo(route.Block(server)))
		})

		It("inherits root, body limit and error pages from the server", func() {
			server.SetBodyLimit(1024)
			server.SetErrorPage(message.StatusNotFound, "/var/www/404.html")

			l := server.AddLocation("/files")
			Expect(l.Root()).To(Equal("/var/www"))
			Expect(l.BodyLimit()).To(Equal(int64(1024)))
			Expect(l.ErrorPage(message.StatusNotFound)).To(Equal("/var/www/404.html"))
		})

		It("refuses duplicate paths", func() {
			Expect(server.AddLocation("/files")).NotTo(BeNil())
			Expect(server.AddLocation("/files")).To(BeNil())
		})
	})

	Describe("virtual hosts", func() {
		var vhost *route.Server

		BeforeEach(func() {
			vhost = route.NewServer("blog.example.org", "127.0.0.1", 8080)
			server.AddVirtualHost(vhost)
		})

		It("selects by Host header, stripping any port suffix", func() {
			Expect(server.VHost("blog.example.org")).To(BeIdenticalTo(vhost))
			Expect(server.VHost("blog.example.org:8080")).To(BeIdenticalTo(vhost))
		})

		It("falls back to itself on unknown hosts", func() {
			Expect(server.VHost("other.example.org")).To(BeIdenticalTo(server))
		})

		It("requires a matching port when one is given", func() {
			Expect(server.VHost("blog.example.org:9999")).To(BeIdenticalTo(server))
		})
	})
})
