package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	wal "github.com/nesv/walq"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "walq",
		Short:         "Inspect and benchmark walq log directories",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(inspectCmd(), benchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "walq:", err)
		os.Exit(1)
	}
}

func inspectCmd() *cobra.Command {
	var showData bool

	cmd := &cobra.Command{
		Use:   "inspect <dir>",
		Short: "Walk a log directory and print every entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := wal.NewReader(args[0])
			defer r.Close()

			var (
				entries uint64
				total   uint64
			)
			for r.Next() {
				data := r.Data()
				entries++
				total += uint64(len(data))
				if showData {
					fmt.Printf("%12d %10s %q\n", r.Index(), humanize.IBytes(uint64(len(data))), data)
				} else {
					fmt.Printf("%12d %10s\n", r.Index(), humanize.IBytes(uint64(len(data))))
				}
			}
			if err := r.Err(); err != nil {
				return err
			}

			fmt.Printf("%s entries, %s\n", humanize.Comma(int64(entries)), humanize.IBytes(total))
			return nil
		},
	}
	cmd.Flags().BoolVar(&showData, "data", false, "print entry payloads")
	return cmd
}

func benchCmd() *cobra.Command {
	var (
		entries   int
		size      int
		chunkSize uint64
		maxChunks int
	)

	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Measure push/pop/ack throughput against a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := wal.Open(args[0], wal.ChunkSize(chunkSize), wal.MaxChunks(maxChunks))
			if err != nil {
				return err
			}
			defer l.Close()

			payload := bytes.Repeat([]byte{'x'}, size)

			start := time.Now()
			for i := 0; i < entries; i++ {
				if _, err := l.Push(payload); err != nil {
					return err
				}
			}
			report("push", entries, size, time.Since(start))

			start = time.Now()
			for {
				entry, err := l.Pop()
				if err != nil {
					return err
				}
				if entry == nil {
					break
				}
			}
			if err := l.Ack(); err != nil {
				return err
			}
			report("pop+ack", entries, size, time.Since(start))

			return l.Close()
		},
	}
	cmd.Flags().IntVarP(&entries, "entries", "n", 10000, "number of entries to push")
	cmd.Flags().IntVarP(&size, "size", "s", 128, "payload size in bytes")
	cmd.Flags().Uint64Var(&chunkSize, "chunk-size", wal.DefaultChunkSize, "soft chunk size in bytes")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", wal.DefaultMaxChunks, "maximum number of open chunks")
	return cmd
}

func report(op string, entries, size int, d time.Duration) {
	perSec := float64(entries) / d.Seconds()
	bytesPerSec := perSec * float64(size)
	fmt.Printf("%-8s %s entries in %v (%s entries/s, %s/s)\n",
		op,
		humanize.Comma(int64(entries)),
		d.Round(time.Millisecond),
		humanize.Comma(int64(perSec)),
		humanize.IBytes(uint64(bytesPerSec)),
	)
}
