package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/pitchrank/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DataFile, convey.ShouldEqual, "rankings.json")
				convey.So(cfg.SchedulerWorkers, convey.ShouldEqual, 1)
				convey.So(cfg.SchedulerQueueSize, convey.ShouldEqual, 1024)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("PITCHRANK_ADDR", ":8080")
			_ = os.Setenv("PITCHRANK_RESULT_CAP", "25")
			_ = os.Setenv("PITCHRANK_ROW_HEIGHT", "48.5")
			_ = os.Setenv("PITCHRANK_WATCH_DATA_FILE", "false")
			_ = os.Setenv("PITCHRANK_COHORTS", "u10-boys, u14-girls,")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ResultCap, convey.ShouldEqual, 25)
				convey.So(cfg.RowHeight, convey.ShouldEqual, 48.5)
				convey.So(cfg.WatchDataFile, convey.ShouldBeFalse)
				convey.So(cfg.Cohorts, convey.ShouldResemble, []string{"u10-boys", "u14-girls"})
			})
		})

		convey.Convey("When loading config with a YAML file", func() {
			tmpFile := createTempConfigFile(`
# rankings backend
addr: ":9090"
data_source: http
data_url: "http://rankings.local"
cohorts:
  - u13-boys
overscan: 3
`)
			defer func() { _ = os.Remove(tmpFile) }()

			convey.Convey("Then an explicit path is honoured", func() {
				cfg, err := config.Load(ctx, tmpFile)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DataSource, convey.ShouldEqual, config.SourceHTTP)
				convey.So(cfg.DataURL, convey.ShouldEqual, "http://rankings.local")
				convey.So(cfg.Cohorts, convey.ShouldResemble, []string{"u13-boys"})
				convey.So(cfg.Overscan, convey.ShouldEqual, 3)
				convey.So(cfg.ResultCap, convey.ShouldEqual, 10)
			})

			convey.Convey("Then PITCHRANK_CONFIG is used when no path is given", func() {
				_ = os.Setenv("PITCHRANK_CONFIG", tmpFile)
				_ = os.Setenv("PITCHRANK_ADDR", ":7070")
				defer clearConfigEnvVars()

				cfg, err := config.Load(ctx, "")
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.Overscan, convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When loading an invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			cfg, err := config.Load(ctx, tmpFile)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			cfg, err := config.Load(ctx, "/nonexistent/pitchrank.yaml")

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("PITCHRANK_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("PITCHRANK_RESULT_CAP", "plenty")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx, "")

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"PITCHRANK_CONFIG",
		"PITCHRANK_ADDR",
		"PITCHRANK_RESULT_CAP",
		"PITCHRANK_ROW_HEIGHT",
		"PITCHRANK_WATCH_DATA_FILE",
		"PITCHRANK_COHORTS",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "pitchrank-config-*.yaml")
	if err != nil {
		panic(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	if err := tmpFile.Close(); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}
