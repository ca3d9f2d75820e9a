package config

import (
	"fmt"
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseKDL builds a Config from KDL text, starting from defaults so a
// partial file only overrides what it names.
func parseKDL(content string) (*Config, error) {
	cfg := Default()

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "server":
			for _, cn := range n.Children {
				assignSimpleString(cn, "addr", func(v string) { cfg.Server.Addr = v })
				assignSimpleString(cn, "upload_dir", func(v string) { cfg.Server.UploadDir = v })
			}
		case "upload":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "max_bytes":
					if v, ok := firstIntArg(cn); ok {
						cfg.Upload.MaxBytes = int64(v)
					}
					if s, ok := firstStringArg(cn); ok {
						if sz, err := parseSize(s); err == nil {
							cfg.Upload.MaxBytes = sz
						}
					}
				case "allowed_extensions":
					cfg.Upload.AllowedExtensions = collectStringArgs(cn)
				case "include":
					cfg.Upload.Include = append(cfg.Upload.Include, collectStringArgs(cn)...)
				case "exclude":
					cfg.Upload.Exclude = append(cfg.Upload.Exclude, collectStringArgs(cn)...)
				}
			}
		case "cache":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "root":
					if s, ok := firstStringArg(cn); ok {
						cfg.Cache.Root = s
					}
				case "max_age_days":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxAgeDays = v
					}
				case "max_total_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Cache.MaxTotalMB = int64(v)
					}
				case "evict_on_start":
					if b, ok := firstBoolArg(cn); ok {
						cfg.Cache.EvictOnStart = b
					}
				}
			}
		case "optimize":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "threshold_mb":
					if v, ok := firstIntArg(cn); ok {
						cfg.Optimize.ThresholdMB = int64(v)
					}
				case "min_reduction_pct":
					if v, ok := firstFloatArg(cn); ok {
						cfg.Optimize.MinReductionPct = v
					}
				case "ghostscript":
					if s, ok := firstStringArg(cn); ok {
						cfg.Optimize.Ghostscript = s
					}
				}
			}
		case "ocr":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "command":
					if s, ok := firstStringArg(cn); ok {
						cfg.OCR.Command = s
					}
				case "worker_cap":
					if v, ok := firstIntArg(cn); ok {
						cfg.OCR.WorkerCap = v
					}
				case "per_file_timeout_seconds":
					if v, ok := firstIntArg(cn); ok {
						cfg.OCR.PerFileTimeoutSec = v
					}
				case "hang_warning_seconds":
					if v, ok := firstIntArg(cn); ok {
						cfg.OCR.HangWarningSec = v
					}
				case "forgiving":
					if b, ok := firstBoolArg(cn); ok {
						cfg.OCR.Forgiving = b
					}
				}
			}
		case "log":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "level":
					if s, ok := firstStringArg(cn); ok {
						cfg.Log.Level = s
					}
				case "ring_capacity":
					if v, ok := firstIntArg(cn); ok {
						cfg.Log.RingCapacity = v
					}
				}
			}
		}
	}

	return cfg, nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstFloatArg(n *document.Node) (float64, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: strings appear as child node names.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}

	return out
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

// parseSize handles size strings like "500MB", "1.5GB"
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))

	var multiplier float64 = 1
	numStr := s

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(v * multiplier), nil
}
