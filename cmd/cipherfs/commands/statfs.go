package commands

import (
	"errors"
	"strconv"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/marmos91/cipherfs/internal/cli/output"
	"github.com/marmos91/cipherfs/pkg/config"
	"github.com/spf13/cobra"
)

var statfsOutput string

var statfsCmd = &cobra.Command{
	Use:   "statfs",
	Short: "Show space statistics of the root filesystem",
	Long: `Report block and inode statistics of the filesystem holding root.path.

No master key is needed.

Examples:
  cipherfs statfs
  cipherfs statfs --output json`,
	Args: cobra.NoArgs,
	RunE: runStatfs,
}

func init() {
	statfsCmd.Flags().StringVarP(&statfsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// statfsResult is the printable form of fuse.StatfsOut.
type statfsResult struct {
	Blocks  uint64 `json:"blocks" yaml:"blocks"`
	Bfree   uint64 `json:"blocks_free" yaml:"blocks_free"`
	Bavail  uint64 `json:"blocks_available" yaml:"blocks_available"`
	Files   uint64 `json:"files" yaml:"files"`
	Ffree   uint64 `json:"files_free" yaml:"files_free"`
	Bsize   uint32 `json:"block_size" yaml:"block_size"`
	NameLen uint32 `json:"name_max" yaml:"name_max"`
	Frsize  uint32 `json:"fragment_size" yaml:"fragment_size"`
}

func newStatfsResult(out *fuse.StatfsOut) statfsResult {
	return statfsResult{
		Blocks:  out.Blocks,
		Bfree:   out.Bfree,
		Bavail:  out.Bavail,
		Files:   out.Files,
		Ffree:   out.Ffree,
		Bsize:   out.Bsize,
		NameLen: out.NameLen,
		Frsize:  out.Frsize,
	}
}

// pairs returns the fields in table order.
func (r statfsResult) pairs() [][2]string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return [][2]string{
		{"Blocks", u(r.Blocks)},
		{"Blocks free", u(r.Bfree)},
		{"Blocks available", u(r.Bavail)},
		{"Files", u(r.Files)},
		{"Files free", u(r.Ffree)},
		{"Block size", u(uint64(r.Bsize))},
		{"Name max", u(uint64(r.NameLen))},
		{"Fragment size", u(uint64(r.Frsize))},
	}
}

func runStatfs(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statfsOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, err := config.CreateRootService(&cfg.Root)
	if err != nil {
		return err
	}
	if root == nil {
		return errors.New("root.path is not configured")
	}

	var out fuse.StatfsOut
	if err := root.Statfs(&out); err != nil {
		return err
	}

	result := newStatfsResult(&out)
	if format == output.FormatTable {
		return output.SimpleTable(cmd.OutOrStdout(), result.pairs())
	}
	return output.NewPrinter(cmd.OutOrStdout(), format).Print(result)
}
