package main

import (
	"context"
	"flag"
	"io"
	"log"
	"path/filepath"

	"github.com/robotalks/iris/pkg/config"
	"github.com/robotalks/iris/pkg/export"
)

var (
	csvDir     string
	sqlitePath string
)

func init() {
	config.SetupFlags()
	flag.StringVar(&csvDir, "csv", csvDir, "Directory receiving <memory>_telemetry.csv and <memory>_events.csv.")
	flag.StringVar(&sqlitePath, "sqlite", sqlitePath, "SQLite database receiving the records.")
}

func loadImages(conf *config.Config) []*export.Image {
	var images []*export.Image
	for _, src := range []struct {
		name   string
		mem    config.Memory
		erased byte
	}{
		{"fram", conf.FRAM, export.FRAMErased},
		{"nor", conf.NOR, export.NORErased},
	} {
		if src.mem.Image == "" {
			continue
		}
		im, err := export.LoadImage(src.name, src.mem.Image, src.mem, src.erased)
		if err != nil {
			log.Fatalf("%s: %v", src.name, err)
		}
		if im.Register != nil {
			log.Printf("%s: register reboots %d, cursors % x", src.name, im.Register.Reboots, im.Register.Cursors)
		}
		images = append(images, im)
	}
	return images
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf, err := config.NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	images := loadImages(conf)
	if len(images) == 0 {
		log.Fatalln("no image, use -fram-image and/or -nor-image")
	}
	if csvDir == "" && sqlitePath == "" {
		csvDir = "."
	}

	ctx := context.Background()
	var db *export.DB
	if sqlitePath != "" {
		if db, err = export.OpenDB(ctx, sqlitePath); err != nil {
			log.Fatalln(err)
		}
		defer db.Close()
	}

	for _, im := range images {
		tlm, err := im.Telemetry()
		if err != nil {
			log.Printf("%s: telemetry: %v", im.Name, err)
		}
		events, err := im.Events()
		if err != nil {
			log.Printf("%s: events: %v", im.Name, err)
		}
		log.Printf("%s: %d telemetry records, %d events", im.Name, len(tlm), len(events))

		if csvDir != "" {
			err = export.WriteCSVFile(filepath.Join(csvDir, im.Name+"_telemetry.csv"), func(w io.Writer) error {
				return export.WriteTelemetryCSV(w, tlm)
			})
			if err == nil {
				err = export.WriteCSVFile(filepath.Join(csvDir, im.Name+"_events.csv"), func(w io.Writer) error {
					return export.WriteEventsCSV(w, events)
				})
			}
			if err != nil {
				log.Fatalln(err)
			}
		}
		if db != nil {
			if err := db.InsertTelemetry(ctx, im.Name, tlm); err != nil {
				log.Fatalln(err)
			}
			if err := db.InsertEvents(ctx, im.Name, events); err != nil {
				log.Fatalln(err)
			}
		}
	}
}
