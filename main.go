package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/cloudgroundcontrol/meetbot/pkg/config"
	"github.com/cloudgroundcontrol/meetbot/pkg/http/rest"
	"github.com/cloudgroundcontrol/meetbot/pkg/session"
	"github.com/cloudgroundcontrol/meetbot/pkg/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Get log verbosity
	var verbosity log.Lvl
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		verbosity = log.DEBUG
	case "info":
		verbosity = log.INFO
	case "warn":
		verbosity = log.WARN
	case "error":
		fallthrough
	default:
		verbosity = log.ERROR
	}
	log.SetLevel(verbosity)
	log.SetHeader("(${short_file}:${line}) ${time_rfc3339} ${level}: ")

	// Check that ffmpeg is installed
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		log.Fatal(err)
	}

	// Check if local recordings directory exists, otherwise create one. Also need to check for the right permissions
	// Value of 0755 is obtained from https://stackoverflow.com/questions/14249467/os-mkdir-and-os-mkdirall-permissions
	// for webservers.
	stat, err := os.Stat(cfg.Recording.Dir)
	if os.IsNotExist(err) {
		err = os.MkdirAll(cfg.Recording.Dir, 0755)
	} else if err == nil && stat.Mode().Perm() != 0755 {
		err = os.Chmod(cfg.Recording.Dir, 0755)
	}
	if err != nil {
		log.Fatal(err)
	}

	// Tee the process log to a local file so it can be uploaded with the
	// session artifacts
	logPath := filepath.Join(cfg.Recording.Dir, "bot.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatal(err)
	}
	defer logFile.Close()
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	// Create S3 uploader only if the environment variables are not empty
	var uploader upload.Uploader
	if cfg.S3.Region != "" && cfg.S3.Bucket != "" {
		uploader, err = upload.NewS3Uploader(context.Background(), upload.S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			Directory: cfg.S3.Directory,
		})
		if err != nil {
			log.Fatal(err)
		}
	}

	// Initialise session service
	service := session.NewService(cfg, logPath)
	service.SetUploader(uploader)

	// Initialise bot controller
	controller := rest.NewBotController(service)

	// Initialise server
	e := echo.New()

	// Attach middlewares
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "(${host}) ${time_rfc3339} ${level}: ${method} ${uri} ${status} ${error}\n",
	}))
	e.Use(middleware.Recover())

	// Attach handlers
	e.GET("/health-check", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// Attach bot handlers
	e.POST("/bots/start", controller.StartBot)
	e.POST("/bots/stop", controller.StopBot)
	e.POST("/bots/pause", controller.PauseBot)
	e.POST("/bots/resume", controller.ResumeBot)
	e.GET("/bots/state", controller.BotState)
	e.POST("/bots/chunks", controller.PushChunk)
	e.POST("/bots/speakers", controller.PushSpeakers)

	// Start server
	e.Logger.Fatal(e.Start(":" + cfg.Server.Port))
}
