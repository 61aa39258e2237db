// Command flatkv-bench times put/get throughput against a fresh
// flatkv file, grounded on the original library's own benchmark_1:
// generate N random words, time inserting them all, reopen and time
// reading them all back (original_source/benchmark_kv.cpp).
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vecble/flatkv"
)

const alphanum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanum[rand.Intn(len(alphanum))]
	}
	return string(b)
}

func main() {
	path := pflag.StringP("path", "p", "flatkv_bench_data", "path to the benchmark file (removed and recreated)")
	n := pflag.IntP("n", "n", 100000, "number of key/value pairs")
	valueLen := pflag.IntP("value-len", "l", 64, "value length in bytes")
	blockSize := pflag.Uint32("block-size", 4096, "store block size")
	order := pflag.Uint16("order", 32, "B+ tree order")
	verbose := pflag.BoolP("verbose", "v", false, "enable info-level logging")
	pflag.Parse()

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, "flatkv-bench: logger init:", err)
			os.Exit(1)
		}
		log = l
	}

	os.Remove(*path)
	defer os.Remove(*path)

	store, err := flatkv.Open(*path,
		flatkv.WithBlockSize(*blockSize),
		flatkv.WithOrder(*order),
		flatkv.WithLogger(log),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flatkv-bench: open:", err)
		os.Exit(1)
	}

	words := make([]string, *n)
	for i := range words {
		words[i] = randomString(8)
	}
	value := []byte(randomString(*valueLen))

	start := time.Now()
	for i, w := range words {
		if err := store.Put([]byte(w), value, true); err != nil {
			fmt.Fprintf(os.Stderr, "flatkv-bench: put #%d (%q): %v\n", i, w, err)
			os.Exit(1)
		}
	}
	putElapsed := time.Since(start)
	fmt.Printf("# %d words. PUT: %.1f words/s\n", *n, float64(*n)/putElapsed.Seconds())

	if err := store.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "flatkv-bench: close:", err)
		os.Exit(1)
	}

	store, err = flatkv.Open(*path,
		flatkv.WithBlockSize(*blockSize),
		flatkv.WithOrder(*order),
		flatkv.WithLogger(log),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flatkv-bench: reopen:", err)
		os.Exit(1)
	}
	defer store.Close()

	start = time.Now()
	for i, w := range words {
		if _, err := store.Get([]byte(w)); err != nil {
			fmt.Fprintf(os.Stderr, "flatkv-bench: get #%d (%q): %v\n", i, w, err)
			os.Exit(1)
		}
	}
	getElapsed := time.Since(start)
	fmt.Printf("# %d words. GET: %.1f words/s\n", *n, float64(*n)/getElapsed.Seconds())
}
