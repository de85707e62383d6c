/*
strata migrate is the maintenance tool that backs up the bbolt file,
then inspects and repairs it in place: it audits index buckets
("idx$model$partition$index") against their primary bucket
("doc$model$partition"): every index key packs the topic part, then
the indexed field values, then the 12-byte object id
(pkg/indexkey.Encode), and the primary key is that same topic part
followed by the id, so an index entry whose topic and trailing id
have no matching primary-bucket key is an
orphan — left behind by a crash between the primary write and its
index writes inside the same bbolt transaction should never happen,
but a restore from an older backup or a manually edited database can
produce exactly that.
*/
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/strata/pkg/dataunit/objectid"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Back up the data file and repair orphaned index entries",
	Long: `migrate opens the bbolt file directly (no Store, no schema),
backs it up, then for every idx$model$partition$index bucket removes
entries whose topic and trailing object id have no corresponding key
in the matching doc$model$partition bucket.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("data-dir", "./strata-data", "Directory holding the bbolt data file")
	migrateCmd.Flags().Bool("dry-run", false, "Report orphaned entries without deleting them")
	migrateCmd.Flags().String("backup", "", "Backup path (default: <data-dir>/strata.db.backup)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	dbPath := filepath.Join(dataDir, "strata.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database not found at %s", dbPath)
	}

	fmt.Println("Strata index repair")
	fmt.Println("====================")
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Dry run:  %v\n", dryRun)

	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		fmt.Printf("Creating backup: %s\n", backupPath)
		if err := copyFile(dbPath, backupPath); err != nil {
			return fmt.Errorf("creating backup: %w", err)
		}
		fmt.Println("backup created")
	}

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	removed, inspected, err := repairOrphanedIndexEntries(db, dryRun)
	if err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}

	if dryRun {
		fmt.Printf("\n%d orphaned index entries found across %d index buckets (no changes made)\n", removed, inspected)
	} else {
		fmt.Printf("\nremoved %d orphaned index entries across %d index buckets\n", removed, inspected)
	}
	return nil
}

// repairOrphanedIndexEntries walks every idx$... bucket, checking each
// entry's topic and trailing object id against the matching doc$...
// bucket.
func repairOrphanedIndexEntries(db *bolt.DB, dryRun bool) (removed, inspected int, err error) {
	type orphan struct {
		indexBucket string
		key         []byte
	}
	var orphans []orphan

	err = db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			bucketName := string(name)
			if !strings.HasPrefix(bucketName, "idx$") {
				return nil
			}
			inspected++
			docBucketName, ok := matchingDocBucket(bucketName)
			if !ok {
				return nil
			}
			docBucket := tx.Bucket([]byte(docBucketName))
			return b.ForEach(func(k, _ []byte) error {
				if len(k) < objectid.Size {
					return nil
				}
				// The leading topic part (terminated by 0x00 0x00) plus
				// the trailing object id is the document's primary key.
				end := bytes.Index(k, []byte{0x00, 0x00})
				if end < 0 || end+2 > len(k)-objectid.Size {
					return nil
				}
				primaryKey := append(append([]byte(nil), k[:end+2]...), k[len(k)-objectid.Size:]...)
				if docBucket == nil || docBucket.Get(primaryKey) == nil {
					orphans = append(orphans, orphan{indexBucket: bucketName, key: append([]byte(nil), k...)})
				}
				return nil
			})
		})
	})
	if err != nil {
		return 0, 0, err
	}

	if dryRun || len(orphans) == 0 {
		return len(orphans), inspected, nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, o := range orphans {
			b := tx.Bucket([]byte(o.indexBucket))
			if b == nil {
				continue
			}
			if err := b.Delete(o.key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return len(orphans), inspected, nil
}

// matchingDocBucket converts "idx$model$partition$index" into
// "doc$model$partition".
func matchingDocBucket(idxBucket string) (string, bool) {
	parts := strings.SplitN(idxBucket, "$", 4)
	if len(parts) != 4 {
		return "", false
	}
	return fmt.Sprintf("doc$%s$%s", parts[1], parts[2]), true
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
