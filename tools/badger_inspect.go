package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"hobby-relay/repositories"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

// Dumps the message log of a stopped relay, optionally restricted to one room.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	room := flag.String("room", "", "Only show this room")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	prefix := repositories.MessagePrefix
	if *room != "" {
		prefix += hex.EncodeToString([]byte(*room)) + ":"
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Room", "Timestamp", "ID", "Sender", "Text"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	count := 0
	err = db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = []byte(prefix)
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				message, err := repositories.DecodeMessage(v)
				if err != nil {
					// Keep going, one corrupt record shouldn't hide the rest
					fmt.Printf("Error decoding key %s: %v\n", string(item.Key()), err)
					return nil
				}

				// The room segment is hex encoded, only keep the ordering part of the key
				rawKey := string(item.Key())
				if i := strings.LastIndex(rawKey, ":"); i > 0 {
					if j := strings.LastIndex(rawKey[:i], ":"); j > 0 {
						rawKey = rawKey[j+1:]
					}
				}

				table.Append([]string{
					rawKey,
					message.Room.String(),
					message.At.Format("2006-01-02 15:04:05.000"),
					message.ID.String()[:8],
					message.Sender,
					message.Text,
				})
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d messages\n", count)
}
