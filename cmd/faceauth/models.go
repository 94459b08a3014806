package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/MrCodeEU/faceauth/pkg/logging"
	"github.com/MrCodeEU/faceauth/pkg/recognition"
)

var modelBaseURL = "http://dlib.net/files/"

// modelFiles are the detector model files in load order.
var modelFiles = []string{
	recognition.LocatorModelFile,
	recognition.LandmarkModelFile,
	recognition.DescriptorModelFile,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the face detector models",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [dir]",
	Short: "Download the dlib models",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modelDir := cfg.Detector.ModelPath
		if len(args) > 0 {
			modelDir = args[0]
		}
		return downloadModels(modelDir, os.Stderr)
	},
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Load the detector models and report their readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		detector := recognition.NewDlibDetector(cfg.Detector)
		defer func() { _ = detector.Close() }()

		gate := recognition.NewGate(detector.Models()...)
		err := gate.LoadAll(cmd.Context())

		states := gate.States()
		for _, name := range []string{recognition.StageLocator, recognition.StageLandmark, recognition.StageDescriptor} {
			fmt.Printf("%-10s %s\n", name, states[name])
		}
		fmt.Println(gate.Status())
		return err
	},
}

func init() {
	modelsCmd.AddCommand(modelsDownloadCmd)
	modelsCmd.AddCommand(modelsStatusCmd)
	rootCmd.AddCommand(modelsCmd)
}

func downloadModels(modelDir string, progress io.Writer) error {
	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	for _, name := range modelFiles {
		targetPath := filepath.Join(modelDir, name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", name)
			continue
		}

		if err := downloadAndExtract(client, modelBaseURL+name+".bz2", targetPath, progress); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
		logging.Infof("Downloaded %s", name)
	}

	logging.Infof("All models present in %s", modelDir)
	return nil
}

// downloadAndExtract fetches a bzip2 archive and writes the decompressed
// content to targetPath. A failed download leaves no file behind.
func downloadAndExtract(client *http.Client, url, targetPath string, progress io.Writer) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), filepath.Base(targetPath)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetDescription(filepath.Base(targetPath)),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	body := io.TeeReader(resp.Body, bar)

	if _, err := io.Copy(tmp, bzip2.NewReader(body)); err != nil {
		_ = tmp.Close()
		return err
	}
	_ = bar.Finish()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), targetPath)
}
