package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/tendant/s3lite/pkg/s3lite"
	"github.com/tendant/s3lite/pkg/s3lite/presigned"
)

const usage = `Usage: s3lite-cli <command> [flags]

Commands:
  presign   ask the server for a presigned URL (needs an API key)
  put       upload a file to a presigned PUT URL
  get       download a presigned GET URL and verify its checksum

Run "s3lite-cli <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "presign":
		err = runPresign(ctx, os.Args[2:])
	case "put":
		err = runPut(ctx, os.Args[2:])
	case "get":
		err = runGet(ctx, os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func runPresign(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("presign", flag.ExitOnError)
	server := fs.String("server", envOr("S3LITE_URL", "http://127.0.0.1:8000"), "s3lite server base URL")
	apiKey := fs.String("api-key", os.Getenv("S3LITE_API_KEY"), "API key (default $S3LITE_API_KEY)")
	bucket := fs.String("bucket", "", "Bucket name")
	key := fs.String("key", "", "Object key")
	method := fs.String("method", "GET", "Method the URL is valid for: GET or PUT")
	expires := fs.Int("expires", 3600, "Validity in seconds (10-86400)")
	contentType := fs.String("content-type", "", "Bind the URL to this Content-Type")
	fs.Parse(args)

	if *bucket == "" || *key == "" {
		return fmt.Errorf("-bucket and -key are required")
	}

	out, err := presigned.NewClient().Presign(ctx, *server, *apiKey, *bucket, *key, presigned.PresignRequest{
		Method:      strings.ToUpper(*method),
		ExpiresIn:   *expires,
		ContentType: *contentType,
	})
	if err != nil {
		return err
	}
	return printJSON(out)
}

func runPut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("put", flag.ExitOnError)
	url := fs.String("url", "", "Presigned PUT URL")
	file := fs.String("file", "", "File to upload")
	contentType := fs.String("content-type", "", "Content-Type; must match the one the URL was signed with")
	retries := fs.Int("retries", 3, "Retries on 5xx and network errors")
	fs.Parse(args)

	if *url == "" || *file == "" {
		return fmt.Errorf("-url and -file are required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	local, err := s3lite.NewUploader().Digest(ctx, f)
	if err != nil {
		return fmt.Errorf("hash %s: %w", *file, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	result, err := newClient(*retries).Upload(ctx, *url, f, *contentType)
	if err != nil {
		return err
	}
	if result.Checksum != local.Checksum {
		return fmt.Errorf("%w: local %s, server %s", presigned.ErrChecksumMismatch, local.Checksum, result.Checksum)
	}
	return printJSON(result)
}

func runGet(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	url := fs.String("url", "", "Presigned GET URL")
	out := fs.String("out", "-", "Output file, - for stdout")
	retries := fs.Int("retries", 3, "Retries on 5xx and network errors")
	fs.Parse(args)

	if *url == "" {
		return fmt.Errorf("-url is required")
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	result, err := newClient(*retries).Download(ctx, *url, w)
	if err != nil {
		return err
	}
	if *out != "-" {
		return printJSON(result)
	}
	return nil
}

func newClient(retries int) *presigned.Client {
	return presigned.NewClient(
		presigned.WithProgress(func(n int64) { fmt.Fprintf(os.Stderr, "\r%d bytes", n) }),
		presigned.WithRetry(retries, time.Second, 10*time.Second),
	)
}

func printJSON(v interface{}) error {
	fmt.Fprintln(os.Stderr)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
