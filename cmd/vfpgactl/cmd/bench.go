package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/openaccel/vfpga/pkg/device"
	"github.com/openaccel/vfpga/pkg/driver"
	"github.com/openaccel/vfpga/pkg/engine"
	"github.com/openaccel/vfpga/pkg/sched"
)

var benchTasks int

var benchCmd = &cobra.Command{
	Use:   "bench <device>",
	Short: "Benchmark the asynchronous task path",
	Long: `bench schedules no-op operations through an execution engine and
reports the completion rate, exercising the queue, the worker and the
device lock the way application tasks do.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := device.OpenPath(args[0])
		if err != nil {
			return err
		}
		defer h.Close()

		lk, err := sched.ForDevice(cfg.LockDir, filepath.Base(args[0]),
			sched.WithTimeout(cfg.LockTimeout))
		if err != nil {
			return err
		}

		eng := engine.New(
			engine.WithQueueDepth(cfg.TaskQueueDepth),
			engine.WithLock(lk),
			engine.WithLockTag("bench"),
		)
		if err := eng.Start(); err != nil {
			return err
		}

		start := time.Now()
		for i := 0; i < benchTasks; i++ {
			task := &engine.FuncTask{
				TaskID: uint64(i),
				Fn: func(ctx context.Context) (uint64, error) {
					return 0, h.Invoke(driver.OpNop, 0, 0, driver.ChannelHostWrite)
				},
			}
			for {
				err := eng.Schedule(task)
				if err == nil {
					break
				}
				if !errors.Is(err, engine.ErrQueueFull) {
					eng.Stop()
					return err
				}
				time.Sleep(time.Millisecond)
			}
		}
		eng.Stop()
		elapsed := time.Since(start)

		failed := 0
		for {
			c, ok := eng.NextCompletion()
			if !ok {
				break
			}
			if c.Err != nil {
				failed++
			}
		}

		fmt.Printf("Completed %d task(s) in %v (%.0f tasks/s), %d failed\n",
			benchTasks, elapsed.Round(time.Millisecond),
			float64(benchTasks)/elapsed.Seconds(), failed)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVar(&benchTasks, "tasks", 1000, "number of tasks to schedule")
	rootCmd.AddCommand(benchCmd)
}
