// Command inspect dumps the engagement activity log from a BadgerDB
// directory as a table. Handy for checking what the engine recorded
// without attaching a client.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"bumpfeed/domain"
)

type config struct {
	DBPath  string `envconfig:"BADGER_FILEPATH" required:"true"`
	Prefix  string `envconfig:"INSPECT_PREFIX" default:"act:"`
	Limit   int    `envconfig:"INSPECT_LIMIT" default:"200"`
	Colours bool   `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Config error: ", err)
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.DBPath).WithReadOnly(true).WithLogger(nil))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Actor", "Kind", "Target", "Priority", "At"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(cfg.Prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && rows < cfg.Limit; it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var e domain.ActivityEvent
				if err := json.Unmarshal(v, &e); err != nil {
					// Log and continue instead of stopping the whole scan.
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}
				table.Append([]string{
					shortKey(string(item.Key())),
					string(e.Room),
					e.ActorID,
					kindLabel(cfg.Colours, e.Kind),
					shortID(e.TargetID),
					fmt.Sprintf("%d", e.Priority),
					e.CreatedAt.Format("2006-01-02 15:04:05"),
				})
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Scan failed: ", err)
	}

	table.Render()
	color.Gray.Printf("\n%d activity events (prefix %q)\n", rows, cfg.Prefix)
}

func kindLabel(colours bool, kind domain.ActivityKind) string {
	if !colours {
		return string(kind)
	}
	switch kind {
	case domain.ActivityReaction:
		return color.Magenta.Sprint(kind)
	case domain.ActivityComment:
		return color.Cyan.Sprint(kind)
	case domain.ActivityPresence:
		return color.Green.Sprint(kind)
	default:
		return string(kind)
	}
}

// shortKey trims the padded timestamp to keep rows readable.
func shortKey(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return key
	}
	return parts[0] + ":" + parts[1] + ":…:" + shortID(parts[len(parts)-1])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
