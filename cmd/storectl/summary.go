package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"vectorstore-go/internal/vecdb"
	"vectorstore-go/pkg/managed"

	"github.com/urfave/cli/v2"
)

// Summary opens a store without the server and prints it in the shape of an init reply
func Summary(ctx *cli.Context) error {
	storePath, err := vecdb.CleanStorePath(ctx.String("path"))
	if err != nil {
		return err
	}

	dir := filepath.Join(ctx.String("root"), filepath.FromSlash(storePath))
	db, err := vecdb.Open(dir, storePath)
	if err != nil {
		return fmt.Errorf("failed to open store %s: %w", storePath, err)
	}
	defer db.Close()

	summary, length, tensors := db.Describe()
	resp := managed.InitResponse{
		StatusCode: http.StatusOK,
		Path:       storePath,
		Summary:    summary,
		Length:     length,
		Tensors:    tensors,
		Exists:     true,
	}

	encoder := json.NewEncoder(ctx.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resp)
}
