package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/syssam/dsr/config"
	"github.com/syssam/dsr/masking"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, conf *config.Config) {
	collections := 0
	for _, d := range conf.Datasets {
		collections += len(d.Collections)
	}
	fmt.Fprintf(w, "configuration is valid: %d datasets (%d collections), %d policies, %d connections, %d storage destinations\n",
		len(conf.Datasets), collections, len(conf.Policies), len(conf.Connections), len(conf.Storage))
}

func printStrategies(w io.Writer, descs []masking.Description, processors []string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MASKING STRATEGY\tCONFIGURATION\tDESCRIPTION")
	for _, d := range descs {
		keys := make([]string, 0, len(d.Configurations))
		for _, c := range d.Configurations {
			keys = append(keys, c.Key)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, strings.Join(keys, ","), d.Description)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\npost-processors: %s\n", strings.Join(processors, ", "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
