package main

import (
	"bytes"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/op/go-logging"

	"github.com/leijurv/jpeg_steg_go/config"
	"github.com/leijurv/jpeg_steg_go/steg"
)

var log = logging.MustGetLogger("verify")

type testResult struct {
	skipped    bool
	roundtrip  bool
	errMsg     string
	capacity   int
	hiddenSize int
	sizeDelta  int // change in file size from stuffing bytes
}

func startLogging(level logging.Level) {
	backend := logging.NewLogBackend(os.Stderr, "verify: ", 0)
	formatter := logging.MustStringFormatter("%{level:8s} %{module:-20s} | %{message}")
	leveled := logging.AddModuleLevel(logging.NewBackendFormatter(backend, formatter))
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	dirPath := flag.String("dir", ".", "Directory containing JPEG files")
	limit := flag.Int("limit", 0, "Limit number of files to test (0 = no limit)")
	workers := flag.Int("workers", 0, "Number of parallel workers (default from configuration)")
	maxMessage := flag.Int("max", 4096, "Longest message to hide in each file")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Seed for the random messages")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
	}
	if *workers <= 0 {
		*workers = conf.VerifyWorkers
	}

	level := logging.WARNING
	if *verbose {
		level = logging.INFO
	}
	startLogging(level)

	entries, err := os.ReadDir(*dirPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading directory: %v\n", err)
		os.Exit(1)
	}

	var jpegFiles []string
	for _, e := range entries {
		if !e.IsDir() && conf.IsImagePath(e.Name()) {
			jpegFiles = append(jpegFiles, e.Name())
		}
	}
	if *limit > 0 && len(jpegFiles) > *limit {
		jpegFiles = jpegFiles[:*limit]
	}

	fmt.Printf("Testing %d files with %d workers (seed %d)...\n", len(jpegFiles), *workers, *seed)

	var pass, fail, skipped, processed int64
	var totalCapacity, totalHidden, totalDelta int64
	var mu sync.Mutex
	var failedFiles []string

	jobs := make(chan string, len(jpegFiles))
	var wg sync.WaitGroup

	done := make(chan struct{})
	var statusWg sync.WaitGroup
	statusWg.Add(1)
	go func() {
		defer statusWg.Done()
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Printf("Progress: %d/%d processed (%d passed, %d failed, %d skipped)\n",
					atomic.LoadInt64(&processed), len(jpegFiles),
					atomic.LoadInt64(&pass), atomic.LoadInt64(&fail), atomic.LoadInt64(&skipped))
			case <-done:
				return
			}
		}
	}()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		rng := rand.New(rand.NewSource(*seed + int64(i)))
		go func() {
			defer wg.Done()
			for filename := range jobs {
				result := testFile(*dirPath, filename, *maxMessage, rng)
				atomic.AddInt64(&processed, 1)

				switch {
				case result.skipped:
					atomic.AddInt64(&skipped, 1)
				case result.roundtrip:
					atomic.AddInt64(&pass, 1)
					atomic.AddInt64(&totalCapacity, int64(result.capacity))
					atomic.AddInt64(&totalHidden, int64(result.hiddenSize))
					atomic.AddInt64(&totalDelta, int64(result.sizeDelta))
				default:
					atomic.AddInt64(&fail, 1)
					mu.Lock()
					failedFiles = append(failedFiles, result.errMsg)
					mu.Unlock()
				}
			}
		}()
	}

	for _, f := range jpegFiles {
		jobs <- f
	}
	close(jobs)
	wg.Wait()
	close(done)
	statusWg.Wait()

	fmt.Println()
	fmt.Printf("Results: %d passed, %d failed, %d skipped\n", pass, fail, skipped)
	if pass > 0 {
		fmt.Printf("Capacity: %d bytes total, %.1f per file\n", totalCapacity, float64(totalCapacity)/float64(pass))
		fmt.Printf("Hidden:   %d bytes, net file size change %+d bytes\n", totalHidden, totalDelta)
	}

	if len(failedFiles) > 0 && len(failedFiles) <= 50 {
		sort.Strings(failedFiles)
		fmt.Println("\nFailed files:")
		for _, f := range failedFiles {
			fmt.Println("  " + f)
		}
	}
	if fail > 0 {
		os.Exit(1)
	}
}

// randomMessage returns n random non-zero bytes
func randomMessage(rng *rand.Rand, n int) []byte {
	msg := make([]byte, n)
	for i := range msg {
		msg[i] = byte(rng.Intn(255) + 1)
	}
	return msg
}

// testFile hides a random message in an in-memory copy of one file and
// checks that it comes back intact and that capacity is unchanged.
func testFile(dirPath, filename string, maxMessage int, rng *rand.Rand) testResult {
	result := testResult{}

	jpg, err := os.ReadFile(filepath.Join(dirPath, filename))
	if err != nil {
		result.errMsg = fmt.Sprintf("%s: read error: %v", filename, err)
		return result
	}

	capacity, err := steg.Capacity(jpg)
	if err != nil {
		// Progressive, grayscale and subsampled-chroma files are out of reach
		if se, ok := steg.IsStegError(err); ok && se.Code == steg.ExitCodeFormatError {
			log.Infof("SKIP: %s: %v", filename, err)
			result.skipped = true
			return result
		}
		result.errMsg = fmt.Sprintf("%s: capacity error: %v", filename, err)
		return result
	}
	result.capacity = capacity

	n := capacity
	if n > maxMessage {
		n = maxMessage
	}
	message := randomMessage(rng, n)

	hidden, err := steg.Hide(jpg, message)
	if err != nil {
		result.errMsg = fmt.Sprintf("%s: hide error: %v", filename, err)
		return result
	}

	after, err := steg.Capacity(hidden)
	if err != nil {
		result.errMsg = fmt.Sprintf("%s: capacity after hide: %v", filename, err)
		return result
	}
	if after != capacity {
		result.errMsg = fmt.Sprintf("%s: capacity changed from %d to %d", filename, capacity, after)
		return result
	}

	revealed, err := steg.Reveal(hidden)
	if err != nil {
		result.errMsg = fmt.Sprintf("%s: reveal error: %v", filename, err)
		return result
	}
	if !bytes.Equal(revealed, message) {
		result.errMsg = fmt.Sprintf("%s: message mismatch (%d bytes hidden, %d revealed)", filename, len(message), len(revealed))
		return result
	}

	result.roundtrip = true
	result.hiddenSize = n
	result.sizeDelta = len(hidden) - len(jpg)
	log.Infof("PASS: %s (capacity %d, hid %d bytes)", filename, capacity, n)
	return result
}
