// swpsend streams stdin or a file through an SWP sender to a remote
// receiver over a (possibly lossy) UDP link.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"swp/pkg/config"
	"swp/pkg/llp"
	"swp/pkg/swpstack"
)

var (
	cfgFile         string
	localAddr       string
	remoteAddr      string
	lossProbability float64
	filePath        string
	verbose         bool
)

var rootCmd = &cobra.Command{
	Use:   "swpsend",
	Short: "Send a byte stream reliably over a lossy datagram link",
	Long: `swpsend reads from stdin (or a file) and transmits the bytes to a
remote swprecv instance using the sliding window protocol: bounded
in-flight segments, per-segment retransmission, cumulative ACKs.`,
	SilenceUsage: true,
	RunE:         runSend,
}

func init() {
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "", "endpoint config file (YAML)")
	rootCmd.Flags().StringVar(&localAddr, "local", "", "local UDP address (default ephemeral)")
	rootCmd.Flags().StringVar(&remoteAddr, "remote", "", "remote UDP address")
	rootCmd.Flags().Float64Var(&lossProbability, "loss", 0, "simulated outgoing loss probability")
	rootCmd.Flags().StringVarP(&filePath, "file", "f", "", "file to send (default stdin)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log protocol events")
}

func runSend(cmd *cobra.Command, args []string) error {
	fileCfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if localAddr != "" {
		fileCfg.LocalAddr = localAddr
	}
	if remoteAddr != "" {
		fileCfg.RemoteAddr = remoteAddr
	}
	if lossProbability > 0 {
		fileCfg.LossProbability = lossProbability
	}
	if fileCfg.RemoteAddr == "" {
		return fmt.Errorf("a remote address is required (--remote or config file)")
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

	sender, err := swpstack.NewSender(endpoint, protoCfg)
	if err != nil {
		return err
	}
	defer sender.Close()

	var total int64
	if filePath != "" {
		total, err = swpstack.SendFile(sender, filePath)
	} else {
		total, err = io.Copy(swpstack.NewStreamWriter(sender), os.Stdin)
	}
	if err != nil {
		return err
	}

	// Hold the process open until every segment is acknowledged.
	sender.Flush()
	fmt.Fprintf(os.Stderr, "sent %d bytes to %s\n", total, fileCfg.RemoteAddr)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
