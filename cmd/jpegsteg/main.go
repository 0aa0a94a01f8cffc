package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/op/go-logging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/term"

	"github.com/leijurv/jpeg_steg_go/config"
	"github.com/leijurv/jpeg_steg_go/steg"
)

var log = logging.MustGetLogger("jpegsteg")

const progName = "jpegsteg"

func startLogging(level logging.Level) {
	backend := logging.NewLogBackend(os.Stderr, progName+": ", 0)
	formatSpec := "%{level:8s} %{module:-20s} | %{message}"
	formatter := logging.MustStringFormatter(formatSpec)
	formatted := logging.NewBackendFormatter(backend, formatter)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: %s [-config FILE] [-d] COMMAND ARGS

commands:
  hide IMG [MSG]     hide a message in IMG, read from MSG or standard input
  reveal IMG [OUT]   write the message hidden in IMG to OUT
  capacity IMG       print how many bytes IMG can hold
  convert SRC DST    re-encode any supported image as a baseline JPEG

flags:
`, progName)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	debug := flag.Bool("d", false, "Debug logging")
	flag.Usage = usage
	flag.Parse()

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
	}

	level, _ := logging.LogLevel(conf.LogLevel)
	if *debug {
		level = logging.DEBUG
	}
	startLogging(level)

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "hide":
		err = runHide(conf, rest)
	case "reveal":
		err = runReveal(conf, rest)
	case "capacity":
		err = runCapacity(conf, rest)
	case "convert":
		err = runConvert(conf, rest)
	default:
		fmt.Fprintf(os.Stderr, "ERROR: invalid command %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Errorf("%s failed for %s: %v", args[0], args[1], err)
		if se, ok := steg.IsStegError(err); ok {
			os.Exit(int(se.Code))
		}
		os.Exit(1)
	}
	log.Infof("completed %s for %s", args[0], args[1])
}

func checkArgCount(args []string, min, max int) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("expected between %d and %d arguments, got %d", min, max, len(args))
	}
	return nil
}

func runHide(conf *config.Config, args []string) error {
	if err := checkArgCount(args, 1, 2); err != nil {
		return err
	}
	imgPath := args[0]
	if err := conf.CheckImagePath(imgPath); err != nil {
		return err
	}

	img, err := steg.ReadImageFile(imgPath)
	if err != nil {
		return err
	}
	logTables(img.Header)
	capacity, err := img.Capacity()
	if err != nil {
		return err
	}
	if capacity <= 0 {
		return steg.NewStegError(steg.ExitCodeCapacityError, "image has no room for a message")
	}
	log.Infof("%s can hold %d bytes", imgPath, capacity)

	var message []byte
	if len(args) == 2 {
		if err := conf.CheckMessagePath(args[1]); err != nil {
			return err
		}
		message, err = loadMessage(args[1], capacity)
	} else {
		message, err = askForMessage(imgPath, capacity)
	}
	if err != nil {
		return err
	}
	out, err := img.Hide(message)
	if err != nil {
		return err
	}
	return steg.WriteImageFile(imgPath, out)
}

// logTables dumps every bound Huffman table at debug level
func logTables(h *steg.Header) {
	if !log.IsEnabledFor(logging.DEBUG) {
		return
	}
	for i := 0; i < steg.MaxTableSlots; i++ {
		if trie := h.Tables.Slot(i); trie != nil {
			log.Debugf("huffman slot %d\n%s", i, trie)
		}
	}
}

// loadMessage reads at most capacity bytes from path
func loadMessage(path string, capacity int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	log.Infof("loading at most %d bytes from %s", capacity, path)
	message, err := io.ReadAll(io.LimitReader(f, int64(capacity)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info, err := f.Stat(); err == nil && info.Size() > int64(capacity) {
		log.Warningf("message truncated from %d to %d bytes", info.Size(), capacity)
	}
	return message, nil
}

// askForMessage prompts for one line on a terminal, or reads all of a piped
// standard input. Either way the message is cut to capacity.
func askForMessage(imgPath string, capacity int) ([]byte, error) {
	var message []byte
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Printf("Write a message to hide in %s with a maximum of %d characters:\n", imgPath, capacity)
		line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		message = bytes.TrimRight(line, "\r\n")
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		message = data
	}
	if len(message) > capacity {
		log.Warningf("message truncated from %d to %d bytes", len(message), capacity)
		message = message[:capacity]
	}
	return message, nil
}

func runReveal(conf *config.Config, args []string) error {
	if err := checkArgCount(args, 1, 2); err != nil {
		return err
	}
	imgPath := args[0]
	if err := conf.CheckImagePath(imgPath); err != nil {
		return err
	}
	outPath := conf.ExtractOutput
	if len(args) == 2 {
		outPath = args[1]
	}

	message, err := steg.RevealFromFile(imgPath)
	if err != nil {
		return err
	}
	out := fmt.Sprintf("EXTRACTED MESSAGE FROM [%s]:\n%s\n\n", imgPath, message)
	if err := os.WriteFile(outPath, []byte(out), 0644); err != nil {
		return err
	}
	log.Infof("wrote %d byte message to %s", len(message), outPath)
	return nil
}

func runCapacity(conf *config.Config, args []string) error {
	if err := checkArgCount(args, 1, 1); err != nil {
		return err
	}
	if err := conf.CheckImagePath(args[0]); err != nil {
		return err
	}
	img, err := steg.ReadImageFile(args[0])
	if err != nil {
		return err
	}
	logTables(img.Header)
	capacity, err := img.Capacity()
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes\n", args[0], capacity)
	return nil
}

// runConvert re-encodes SRC as a baseline three-component JPEG, the only
// kind of image the other commands accept.
func runConvert(conf *config.Config, args []string) error {
	if err := checkArgCount(args, 2, 2); err != nil {
		return err
	}
	src, dst := args[0], args[1]
	if !conf.IsImagePath(dst) {
		return fmt.Errorf("%s is not a jpeg image: %w", dst, config.ErrInvalidPath)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	img, format, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}
	log.Debugf("decoded %s image %v", format, img.Bounds())

	// The encoder writes grayscale sources as a single component
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: conf.ConvertQuality}); err != nil {
		return err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0644); err != nil {
		return err
	}

	capacity, err := steg.Capacity(buf.Bytes())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes\n", filepath.Base(dst), capacity)
	return nil
}
