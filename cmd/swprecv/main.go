// swprecv receives an SWP byte stream over UDP and writes it to stdout
// or a file, printing a transfer summary when the stream goes idle.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"swp/pkg/config"
	"swp/pkg/llp"
	"swp/pkg/swpstack"
)

var (
	cfgFile         string
	localAddr       string
	lossProbability float64
	outPath         string
	idleTimeout     time.Duration
	verbose         bool
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
)

var rootCmd = &cobra.Command{
	Use:   "swprecv",
	Short: "Receive a byte stream sent over a lossy datagram link",
	Long: `swprecv binds a UDP address, accepts DATA segments from a remote
swpsend instance, reassembles them in order, and writes the stream to
stdout or a file. The transfer finishes once no chunk has arrived for
the idle timeout.`,
	SilenceUsage: true,
	RunE:         runRecv,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "endpoint config file (YAML)")
	rootCmd.Flags().StringVar(&localAddr, "local", "", "local UDP address to bind")
	rootCmd.Flags().Float64Var(&lossProbability, "loss", 0, "simulated outgoing (ACK) loss probability")
	rootCmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	rootCmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 10*time.Second, "finish after this long without data")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol events")
}

func runRecv(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if localAddr != "" {
		fileCfg.LocalAddr = localAddr
	}
	if lossProbability > 0 {
		fileCfg.LossProbability = lossProbability
	}
	if fileCfg.LocalAddr == "" {
		return fmt.Errorf("a local address is required (--local or config file)")
	}

	endpoint, err := llp.NewEndpoint(fileCfg.LocalAddr, fileCfg.RemoteAddr, fileCfg.LossProbability)
	if err != nil {
		return err
	}
	defer endpoint.Close()

	protoCfg := fileCfg.Protocol()
	if verbose {
		protoCfg.Logf = log.Printf
	}

	receiver, err := swpstack.NewReceiver(endpoint, protoCfg)
	if err != nil {
		return err
	}
	defer receiver.Close()

	out := os.Stdout
	if outPath != "" {
		out, err = os.Create(outPath)
		if err != nil {
			return err
		}
		defer out.Close()
	}

	type result struct {
		chunk []byte
		err   error
	}
	results := make(chan result)
	go func() {
		for {
			chunk, err := receiver.Recv()
			results <- result{chunk, err}
			if err != nil {
				return
			}
		}
	}()

	start := time.Now()
	var totalBytes int64
	var totalChunks int
loop:
	for {
		select {
		case res := <-results:
			if res.err != nil {
				break loop
			}
			if _, err := out.Write(res.chunk); err != nil {
				return err
			}
			totalBytes += int64(len(res.chunk))
			totalChunks++
		case <-time.After(idleTimeout):
			break loop
		}
	}

	fmt.Fprintf(os.Stderr, "%s %s\n",
		labelStyle.Render("received:"),
		valueStyle.Render(fmt.Sprintf("%d bytes in %d chunks over %v",
			totalBytes, totalChunks, time.Since(start).Round(time.Millisecond))))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
