package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/spf13/cobra"
)

var insertCmd = &cobra.Command{
	Use:   "insert COLLECTION",
	Short: "Insert a record read from --file or stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collectionName := args[0]
		data, err := readRecordInput(cmd)
		if err != nil {
			return err
		}
		rec, err := bson.FromJSON(data)
		if err != nil {
			return err
		}
		id, ok := rec.ID()
		if !ok {
			return fmt.Errorf("record is missing a string \"_id\" field")
		}

		ctx := context.Background()
		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		coll, err := db.Collection(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		if err := coll.InsertOne(ctx, rec, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("insert %s: %w", id, err)
		}

		fmt.Printf("✓ Inserted %s/%s\n", collectionName, id)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get COLLECTION ID",
	Short: "Fetch a single record by ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collectionName, id := args[0], args[1]

		ctx := context.Background()
		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		coll, err := db.Collection(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		rec, found, err := coll.GetOne(ctx, id)
		if err != nil {
			return fmt.Errorf("get %s: %w", id, err)
		}
		if !found {
			return fmt.Errorf("record %s/%s not found", collectionName, id)
		}

		out, err := bson.ToJSON(rec)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update COLLECTION ID",
	Short: "Merge fields from --file or stdin into an existing record",
	Long: `update applies the JSON object read from --file or stdin as a
field-level, last-writer-wins merge against the existing record (spec
section 4.2). Fields not present in the input are left untouched; a
field set to JSON null deletes that field.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collectionName, id := args[0], args[1]
		data, err := readRecordInput(cmd)
		if err != nil {
			return err
		}
		patch, err := bson.FromJSON(data)
		if err != nil {
			return err
		}

		updates := make(map[string]*bson.Value, len(patch))
		for k, v := range patch {
			v := v
			if v.Kind == bson.KindNull {
				updates[k] = nil // a nil value deletes the field
				continue
			}
			updates[k] = &v
		}

		ctx := context.Background()
		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		coll, err := db.Collection(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		found, err := coll.UpdateOne(ctx, id, updates, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		if !found {
			return fmt.Errorf("record %s/%s not found", collectionName, id)
		}

		fmt.Printf("✓ Updated %s/%s\n", collectionName, id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete COLLECTION ID",
	Short: "Delete a record by ID",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		collectionName, id := args[0], args[1]

		ctx := context.Background()
		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		coll, err := db.Collection(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		found, err := coll.DeleteOne(ctx, id)
		if err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		if !found {
			return fmt.Errorf("record %s/%s not found", collectionName, id)
		}

		fmt.Printf("✓ Deleted %s/%s\n", collectionName, id)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list COLLECTION",
	Short: "Page through a collection's records in ID order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		collectionName := args[0]
		cursor, _ := cmd.Flags().GetString("cursor")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := context.Background()
		db, err := openDatabase(ctx, cmd)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close(ctx)

		coll, err := db.Collection(ctx, collectionName)
		if err != nil {
			return fmt.Errorf("open collection %q: %w", collectionName, err)
		}

		recs, next, err := coll.GetAll(ctx, cursor, limit)
		if err != nil {
			return fmt.Errorf("list %s: %w", collectionName, err)
		}

		for _, rec := range recs {
			id, _ := rec.ID()
			fmt.Println(id)
		}
		if next != "" {
			fmt.Fprintf(os.Stderr, "next cursor: %s\n", next)
		}
		return nil
	},
}

func init() {
	insertCmd.Flags().String("file", "", "Path to a JSON record (defaults to stdin)")
	updateCmd.Flags().String("file", "", "Path to a JSON patch object (defaults to stdin)")
	listCmd.Flags().String("cursor", "", "Resume listing after this ID")
	listCmd.Flags().Int("limit", 100, "Maximum records to return")
}

// readRecordInput reads a JSON document from --file, or from stdin when
// --file is unset, mirroring the teacher's "flags first, sane default
// fallback" pattern for optional inputs.
func readRecordInput(cmd *cobra.Command) ([]byte, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
