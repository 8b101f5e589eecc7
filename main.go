package main

import (
	"fmt"
	"os"
	"time"

	"echod/config"
	"echod/echo"
	"echod/gnet"
	tcpiface "echod/interface/tcp"
	"echod/lib/logger"
	"echod/lib/utils"
	"echod/tcp"
)

var banner = `
              __              __
  ___  _____/ /_  ____  ____/ /
 / _ \/ ___/ __ \/ __ \/ __  /
/  __/ /__/ / / / /_/ / /_/ /
\___/\___/_/ /_/\____/\__,_/
`

var defaultProperties = &config.ServerProperties{
	Bind:        "0.0.0.0",
	Port:        7878,
	GracePeriod: 10,
	Dispatch:    tcp.DispatchConcurrent,
	BufferSize:  512,
	RunID:       utils.RandString(40),
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func main() {
	print(banner)
	logger.Setup(&logger.Settings{
		Path:       "logs",
		Name:       "echod",
		Ext:        "log",
		TimeFormat: "2006-01-02",
	})
	configFilename := os.Getenv("CONFIG")
	if configFilename == "" {
		if fileExists(config.DefaultConfPath) {
			config.SetupConfig(config.DefaultConfPath)
		} else {
			config.Properties = defaultProperties
		}
	} else {
		config.SetupConfig(configFilename)
	}
	listenAddr := fmt.Sprintf("%s:%d", config.Properties.Bind, config.Properties.Port)

	var handler tcpiface.Handler
	if config.Properties.Stream {
		handler = echo.MakeStreamHandler()
	} else {
		handler = echo.MakeHandler()
	}

	if config.Properties.EventLoop {
		server := gnet.NewGnetServer()
		if err := server.Run(listenAddr); err != nil {
			logger.Errorf("start server failed: %v", err)
		}
		return
	}

	err := tcp.ListenAndServeWithSignal(&tcp.Config{
		Address:     listenAddr,
		MaxConnect:  uint32(config.Properties.MaxConnect),
		Timeout:     time.Duration(config.Properties.Timeout) * time.Second,
		GracePeriod: time.Duration(config.Properties.GracePeriod) * time.Second,
		Dispatch:    config.Properties.Dispatch,
		PoolSize:    config.Properties.PoolSize,
		NonBlock:    config.Properties.NonBlock,
	}, handler)
	if err != nil {
		logger.Error(err)
	}
}
