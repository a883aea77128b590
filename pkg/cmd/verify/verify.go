package verify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/sentinel-replay/pkg/analysis/overlay"
	"github.com/mpapenbr/sentinel-replay/pkg/model"
)

var ErrCompromised = errors.New("receipt chain compromised")

func NewVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "verifies the secure receipt chain of an analysis result",
		Long: `Reads either a json array of secure receipts or an analysis result
containing secure_receipts and checks the hash chain.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return Verify(f, cmd.OutOrStdout())
		},
	}
	return cmd
}

// Verify reads receipts from r and writes a line per receipt to out. The first
// failing receipt ends the scan.
func Verify(r io.Reader, out io.Writer) error {
	receipts, err := readReceipts(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "scanning %d receipts\n", len(receipts))
	err = overlay.VerifyChain(receipts)
	var chainErr *overlay.ChainError
	failed := -1
	if errors.As(err, &chainErr) {
		failed = chainErr.Position
	} else if err != nil {
		return err
	}
	for i := range receipts {
		if i == failed {
			fmt.Fprintf(out, "[%d] %s: %v\n", i+1, receipts[i].ID, chainErr)
			break
		}
		fmt.Fprintf(out, "[%d] %s: verified\n", i+1, receipts[i].ID)
	}
	if failed >= 0 {
		fmt.Fprintln(out, "chain compromised")
		return fmt.Errorf("%w: %w", ErrCompromised, chainErr)
	}
	fmt.Fprintln(out, "chain verified, no tampering found")
	return nil
}

func readReceipts(r io.Reader) ([]model.SecureReceipt, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ret []model.SecureReceipt
		if err := json.Unmarshal(data, &ret); err != nil {
			return nil, fmt.Errorf("receipts: %w", err)
		}
		return ret, nil
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("analysis result: %w", err)
	}
	return res.SecureReceipts, nil
}
