package main

import (
	"log"
	"os"
	"time"

	"github.com/hamba/cmd"
	"gopkg.in/urfave/cli.v2"
)

import _ "github.com/joho/godotenv/autoload"

const (
	flagConcurrency     = "concurrency"
	flagAllocatedGroups = "allocated-groups"
	flagReportInterval  = "report-interval"
	flagRedisAddr       = "redis-addr"
	flagResultTTL       = "result-ttl"
	flagStateFile       = "state-file"
	flagSchedule        = "schedule"
)

var version = "¯\\_(ツ)_/¯"

var commands = []*cli.Command{
	{
		Name:  "run",
		Usage: "Run the job worker",
		Flags: cmd.Flags{
			&cli.IntFlag{
				Name:    flagConcurrency,
				Usage:   "The core size of the worker pool.",
				Value:   4,
				EnvVars: []string{"WORKER_CONCURRENCY"},
			},
			&cli.IntSliceFlag{
				Name:    flagAllocatedGroups,
				Usage:   "The groups that get their own executor.",
				EnvVars: []string{"WORKER_ALLOCATED_GROUPS"},
			},
			&cli.DurationFlag{
				Name:    flagReportInterval,
				Usage:   "The interval between job reports. Zero disables reporting.",
				Value:   10 * time.Second,
				EnvVars: []string{"WORKER_REPORT_INTERVAL"},
			},
			&cli.StringFlag{
				Name:    flagRedisAddr,
				Usage:   "The address of the Redis result cache. Results are kept in memory when empty.",
				EnvVars: []string{"WORKER_REDIS_ADDR"},
			},
			&cli.DurationFlag{
				Name:    flagResultTTL,
				Usage:   "How long undelivered results are kept.",
				Value:   time.Hour,
				EnvVars: []string{"WORKER_RESULT_TTL"},
			},
			&cli.StringFlag{
				Name:    flagStateFile,
				Usage:   "The file the pending jobs are saved to on shutdown.",
				Value:   "/tmp/worker.state",
				EnvVars: []string{"WORKER_STATE_FILE"},
			},
			&cli.StringFlag{
				Name:    flagSchedule,
				Usage:   "The cron schedule of the sweep job.",
				Value:   "@every 30s",
				EnvVars: []string{"WORKER_SCHEDULE"},
			},
		}.Merge(cmd.CommonFlags),
		Action: runWorker,
	},
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "worker",
		Version:  version,
		Commands: commands,
	}
}

func main() {
	app := newApp()

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
