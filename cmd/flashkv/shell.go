package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/image"
	"github.com/KevoDB/flashkv/pkg/store"
)

const shellHelp = `
Commands:
  help                    - Show this help message
  put NAME VALUE          - Store VALUE (the rest of the line) under NAME
  puthex NAME HEX         - Store hex-encoded bytes under NAME
  get NAME                - Print the live value of NAME
  del NAME                - Delete NAME
  ls                      - List live records
  compact                 - Rotate the log into the next page
  format                  - Erase every page
  usage                   - Show how the current page is used

  .stats                  - Show store statistics
  .dump FILE [CODEC]      - Save the flash region to FILE (codec: none, zstd, snappy)
  .load FILE              - Replace the flash region with the image in FILE
  .exit                   - Exit the program
`

var errNoStore = errors.New("no store open")

// Shell runs interactive commands against a store
type Shell struct {
	dev     flash.Device
	store   *store.Store
	options []store.Option
	out     io.Writer
}

// NewShell returns a shell over st, which must be open on dev. options are
// reused when .load reopens the store.
func NewShell(dev flash.Device, st *store.Store, out io.Writer, options ...store.Option) *Shell {
	return &Shell{
		dev:     dev,
		store:   st,
		options: options,
		out:     out,
	}
}

// Store returns the currently open store, or nil after a failed .load
func (sh *Shell) Store() *store.Store {
	return sh.store
}

// Execute runs one command line. It reports true when the shell should exit.
func (sh *Shell) Execute(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false, nil
	}
	cmd := strings.ToLower(parts[0])

	if cmd == ".exit" || cmd == "exit" || cmd == "quit" {
		return true, nil
	}
	if cmd == "help" || cmd == ".help" {
		fmt.Fprint(sh.out, shellHelp)
		return false, nil
	}
	if cmd == ".load" {
		if len(parts) != 2 {
			return false, errors.New("usage: .load FILE")
		}
		return false, sh.load(ctx, parts[1])
	}
	if sh.store == nil {
		return false, errNoStore
	}

	switch cmd {
	case "put":
		if len(parts) < 3 {
			return false, errors.New("usage: put NAME VALUE")
		}
		return false, sh.put(ctx, parts[1], []byte(rest(line, 2)))

	case "puthex":
		if len(parts) != 3 {
			return false, errors.New("usage: puthex NAME HEX")
		}
		payload, err := hex.DecodeString(parts[2])
		if err != nil {
			return false, fmt.Errorf("invalid hex value: %w", err)
		}
		return false, sh.put(ctx, parts[1], payload)

	case "get":
		if len(parts) != 2 {
			return false, errors.New("usage: get NAME")
		}
		payload, err := sh.store.Get(parts[1])
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintln(sh.out, "<not found>")
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, printable(payload))

	case "del", "delete":
		if len(parts) != 2 {
			return false, errors.New("usage: del NAME")
		}
		if err := sh.store.Delete(ctx, parts[1]); err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, "Deleted")

	case "ls", "list":
		return false, sh.list()

	case "compact":
		start := time.Now()
		if err := sh.store.Compact(ctx); err != nil {
			return false, err
		}
		fmt.Fprintf(sh.out, "Compacted into page %d (%.2f ms)\n", sh.store.Page(), float64(time.Since(start).Microseconds())/1000.0)

	case "format":
		if err := sh.store.Format(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(sh.out, "Formatted")

	case "usage":
		return false, sh.usage()

	case ".stats":
		sh.stats()

	case ".dump":
		if len(parts) < 2 || len(parts) > 3 {
			return false, errors.New("usage: .dump FILE [CODEC]")
		}
		codecName := ""
		if len(parts) == 3 {
			codecName = parts[2]
		}
		codec, err := image.ParseCodec(codecName)
		if err != nil {
			return false, err
		}
		footer, err := image.SaveFile(parts[1], sh.dev, codec)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(sh.out, "Saved %d pages of %d bytes to %s (%s, %d bytes)\n",
			footer.PageCount, footer.PageSize, parts[1], codec, footer.BodySize)

	default:
		return false, fmt.Errorf("unknown command: %s", parts[0])
	}

	return false, nil
}

func (sh *Shell) put(ctx context.Context, name string, payload []byte) error {
	rec, err := sh.store.Write(ctx, name, payload)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(sh.out, "No record stored for %q\n", name)
		return nil
	}
	fmt.Fprintf(sh.out, "Stored %q id=%d len=%d at %s\n", rec.Name, rec.ID, rec.Length, rec.Addr)
	return nil
}

func (sh *Shell) list() error {
	records, err := sh.store.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(sh.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLEN\tCRC\tADDR")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%d\t0x%02X\t%s\n", rec.ID, rec.Name, rec.Length, rec.Checksum, rec.Addr)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%d records\n", len(records))
	return nil
}

func (sh *Shell) usage() error {
	u, err := sh.store.Usage()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "Page %d: %d of %d bytes used, %d free\n", u.Page, u.Used, u.PageSize, u.Free)
	fmt.Fprintf(sh.out, "%d live records in %d bytes, %d headers on page\n", u.LiveRecords, u.LiveBytes, u.Headers)
	return nil
}

// load replaces the region with an image file and reopens the store on it
func (sh *Shell) load(ctx context.Context, path string) error {
	if sh.store != nil {
		if err := sh.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
		sh.store = nil
	}

	footer, err := image.LoadFile(ctx, path, sh.dev)
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, sh.dev, sh.options...)
	if err != nil {
		return fmt.Errorf("failed to reopen store: %w", err)
	}
	sh.store = st

	fmt.Fprintf(sh.out, "Loaded image taken %s, current page %d\n", footer.Created().Format(time.RFC3339), st.Page())
	return nil
}

func (sh *Shell) stats() {
	stats := sh.store.Stats()

	getUint64 := func(m map[string]interface{}, key string) uint64 {
		switch v := m[key].(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		case int:
			return uint64(v)
		default:
			return 0
		}
	}

	fmt.Fprintln(sh.out, "📊 Operations:")
	for _, op := range []string{"write", "delete", "find", "read", "list", "compact", "format"} {
		fmt.Fprintf(sh.out, "  • %s: %d\n", toTitle(op), getUint64(stats, op+"_ops"))
	}

	fmt.Fprintln(sh.out, "\n⚡ Flash:")
	fmt.Fprintf(sh.out, "  • Erases: %d\n", getUint64(stats, "erase_ops"))
	fmt.Fprintf(sh.out, "  • Programs: %d\n", getUint64(stats, "program_ops"))
	fmt.Fprintf(sh.out, "  • Bytes Read: %d\n", getUint64(stats, "total_bytes_read"))
	fmt.Fprintf(sh.out, "  • Bytes Written: %d\n", getUint64(stats, "total_bytes_written"))
	fmt.Fprintf(sh.out, "  • Current Page: %d (%d bytes used)\n", getUint64(stats, "current_page"), getUint64(stats, "page_used_bytes"))

	fmt.Fprintln(sh.out, "\n🧹 Compaction:")
	fmt.Fprintf(sh.out, "  • Count: %d\n", getUint64(stats, "compaction_count"))
	fmt.Fprintf(sh.out, "  • Records Copied: %d\n", getUint64(stats, "compaction_records_copied"))
	fmt.Fprintf(sh.out, "  • Bytes Reclaimed: %d\n", getUint64(stats, "compaction_bytes_reclaimed"))

	if discovery, ok := stats["discovery"].(map[string]interface{}); ok {
		fmt.Fprintln(sh.out, "\n🔄 Discovery:")
		fmt.Fprintf(sh.out, "  • Page: %d\n", getUint64(discovery, "page"))
		fmt.Fprintf(sh.out, "  • Records Found: %d\n", getUint64(discovery, "records_found"))
		fmt.Fprintf(sh.out, "  • Corrupt Tails: %d\n", getUint64(discovery, "corrupt_tails"))
		if d, ok := discovery["duration_us"]; ok {
			fmt.Fprintf(sh.out, "  • Duration: %v µs\n", d)
		}
	}

	if errs, ok := stats["errors"].(map[string]interface{}); ok && len(errs) > 0 {
		fmt.Fprintln(sh.out, "\n⚠️ Errors:")
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(sh.out, "  • %s: %v\n", toTitle(strings.ReplaceAll(k, "_", " ")), errs[k])
		}
	}

	var latencies []string
	for key := range stats {
		if strings.HasSuffix(key, "_latency") {
			latencies = append(latencies, key)
		}
	}
	if len(latencies) > 0 {
		sort.Strings(latencies)
		fmt.Fprintln(sh.out, "\n⏱️ Latency:")
		for _, key := range latencies {
			l := stats[key].(map[string]interface{})
			fmt.Fprintf(sh.out, "  • %s avg: %.3f ms\n", toTitle(strings.TrimSuffix(key, "_latency")), float64(getUint64(l, "avg_ns"))/1e6)
		}
	}
}

// rest returns line without its first n fields
func rest(line string, n int) string {
	s := strings.TrimSpace(line)
	for i := 0; i < n; i++ {
		idx := strings.IndexFunc(s, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[idx:], unicode.IsSpace)
	}
	return s
}

// printable returns payload as text when every rune prints, else as hex
func printable(payload []byte) string {
	if !utf8.Valid(payload) {
		return "0x" + hex.EncodeToString(payload)
	}
	s := string(payload)
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "0x" + hex.EncodeToString(payload)
		}
	}
	return s
}

// toTitle upper-cases the first letter of each word
func toTitle(s string) string {
	prev := ' '
	return strings.Map(
		func(r rune) rune {
			if unicode.IsSpace(prev) {
				prev = r
				return unicode.ToTitle(r)
			}
			prev = r
			return r
		},
		s)
}
