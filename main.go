package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"code.cloudfoundry.org/clock"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/sigmon"

	"github.com/c3b5aw/webserv/accesslog"
	"github.com/c3b5aw/webserv/config"
	"github.com/c3b5aw/webserv/errorwriter"
	"github.com/c3b5aw/webserv/handlers"
	log "github.com/c3b5aw/webserv/logger"
	"github.com/c3b5aw/webserv/registry"
	"github.com/c3b5aw/webserv/router"
)

var configFile string

func main() {
	flag.StringVar(&configFile, "c", "", "Configuration File")
	flag.Parse()

	c, err := config.InitConfigFromFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %s\n", err)
		os.Exit(1)
	}

	log.SetTimeEncoder(c.Logging.TimestampFormat)
	log.SetLoggingLevel(c.Logging.Level)

	prefix := "webserv"
	logger := log.CreateLoggerWithSource(prefix, "")

	accessLogger, err := accesslog.CreateRunningAccessLogger(
		log.CreateLoggerWithSource(prefix, "access_log"), c)
	if err != nil {
		log.Fatal(logger, "error-creating-access-logger", log.ErrAttr(err))
	}

	reg := registry.NewRouteRegistry(log.CreateLoggerWithSource(prefix, "registry"), c)
	pipeline := handlers.NewPipeline(
		log.CreateLoggerWithSource(prefix, "handlers"), reg, errorwriter.NewErrorWriter())

	ws := router.NewRouter(
		log.CreateLoggerWithSource(prefix, "router"),
		c, reg, pipeline, accessLogger, clock.NewClock(), int(os.Stdin.Fd()))

	members := grouper.Members{
		{Name: "router", Runner: ws},
	}
	group := grouper.NewOrdered(os.Interrupt, members)

	monitor := ifrit.Invoke(sigmon.New(group, syscall.SIGTERM, syscall.SIGINT))

	<-monitor.Ready()
	logger.Info("webserv.started")

	err = <-monitor.Wait()
	accessLogger.Stop()
	if err != nil {
		log.Fatal(logger, "webserv.exited-with-failure", log.ErrAttr(err))
	}

	os.Exit(0)
}
