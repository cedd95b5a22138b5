package main

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ashgrove/rconv2"
	"github.com/ashgrove/rconv2/config"
)

var (
	serveMetricsKeyringUser string
	serveMetricsAddr        string
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Run a supervised connection and expose its Prometheus metrics over HTTP",
	RunE:  runServeMetrics,
}

func init() {
	config.RegisterFlags(serveMetricsCmd)
	serveMetricsCmd.Flags().StringVar(&serveMetricsKeyringUser, "password-from-keyring", "", "resolve the password from the OS keychain under this username instead of --password")
	serveMetricsCmd.Flags().StringVar(&serveMetricsAddr, "listen", ":9477", "address to serve /metrics on")
}

func runServeMetrics(cmd *cobra.Command, args []string) error {
	loader, err := config.NewLoader(cmd)
	if err != nil {
		return err
	}
	if err := loader.UseConfigFile(configFile, nil); err != nil {
		return err
	}

	log := logrus.NewEntry(logrus.StandardLogger()).WithField("component", "rconctl")

	reg := prometheus.NewRegistry()
	metrics := rconv2.NewMetrics(reg, "rconctl")

	cfg, err := loader.Load(log, metrics)
	if err != nil {
		return err
	}
	pw, err := resolvePassword(cfg.Password, serveMetricsKeyringUser)
	if err != nil {
		return err
	}
	cfg.Password = pw

	sv := rconv2.NewSupervisor(cfg)
	sv.Start()
	defer sv.Stop()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		if sv.IsConnected() {
			c.String(200, "ok")
			return
		}
		c.String(503, "not connected")
	})

	log.WithField("addr", serveMetricsAddr).Info("rconctl: serving metrics")
	if err := router.Run(serveMetricsAddr); err != nil {
		return fmt.Errorf("rconctl: metrics server: %w", err)
	}
	return nil
}
