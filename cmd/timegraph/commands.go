package main

import (
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/timegraphdb/pkg/record"
	"github.com/dd0wney/timegraphdb/pkg/storage"
)

// Relationship kinds used by demo and load.
const (
	relMemberOf uint32 = iota + 1
	relAttended
	relOrganised
)

var relationNames = map[uint32]string{
	relMemberOf:  "member of",
	relAttended:  "attended",
	relOrganised: "organised",
}

func runDemo(env *environment, args []string) error {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	fs.Parse(args)

	db, err := env.openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	people := []node{
		{Key: "member/mary", Kind: "member", Label: "Mary"},
		{Key: "member/edward", Kind: "member", Label: "Edward"},
		{Key: "member/priya", Kind: "member", Label: "Priya"},
	}
	group := node{Key: "group/go-night", Kind: "group", Label: "Go Night"}
	events := []node{
		{Key: "event/2023-03", Kind: "event", Label: "March meetup"},
		{Key: "event/2023-04", Kind: "event", Label: "April meetup"},
	}

	ids := map[string]int32{}
	for _, n := range append(append(people, group), events...) {
		if id, found, err := db.FindNodeIDFromUniqueID(n.Key); err != nil {
			return err
		} else if found {
			ids[n.Key] = id
			continue
		}
		id, err := db.InsertNode(n)
		if err != nil {
			return err
		}
		ids[n.Key] = id
	}
	fmt.Printf("✅ %d nodes\n", db.NodeCount())

	start := time.Date(2023, 1, 10, 19, 0, 0, 0, time.UTC)
	links := []struct {
		at       time.Time
		lhs, rhs string
		rel      uint32
	}{
		{start, "member/mary", "group/go-night", relMemberOf},
		{start.AddDate(0, 0, 5), "member/edward", "group/go-night", relMemberOf},
		{start.AddDate(0, 2, 0), "member/mary", "event/2023-03", relOrganised},
		{start.AddDate(0, 2, 4), "member/edward", "event/2023-03", relAttended},
		{start.AddDate(0, 2, 4), "member/priya", "event/2023-03", relAttended},
		{start.AddDate(0, 3, 1), "member/priya", "event/2023-04", relOrganised},
		{start.AddDate(0, 1, 0), "member/priya", "group/go-night", relMemberOf},
	}
	for _, l := range links {
		err := db.Relate(l.at, ids[l.lhs], ids[l.rhs], l.rel)
		if err != nil && !storage.IsDuplicate(err) {
			return err
		}
	}

	from, to := start.AddDate(0, 1, 0), start.AddDate(0, 3, 0)
	rows, err := db.Relationships(from, to)
	if err != nil {
		return err
	}
	fmt.Printf("\n📅 Between %s and %s\n", from.Format(time.DateOnly), to.Format(time.DateOnly))
	for _, r := range rows {
		lhs, err := db.GetNode(int32(r.LhsID))
		if err != nil {
			return err
		}
		rhs, err := db.GetNode(int32(r.RhsID))
		if err != nil {
			return err
		}
		fmt.Printf("   %s  %s %s %s\n", r.Time().Format(time.DateOnly), lhs.Label, relationNames[r.RelationshipID], rhs.Label)
	}

	n, found, err := db.FindNodeFromUniqueID("member/priya")
	if err != nil {
		return err
	}
	fmt.Printf("\n🔎 member/priya found=%v label=%q\n", found, n.Label)

	return db.Verify()
}

func runLoad(env *environment, args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	var (
		nodes = fs.Int("nodes", 1000, "Nodes to insert")
		rels  = fs.Int("relationships", 10000, "Relationships to insert")
		span  = fs.Duration("span", 365*24*time.Hour, "Time span relationships are spread over")
		seed  = fs.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
	)
	fs.Parse(args)

	db, err := env.openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	rng := rand.New(rand.NewPCG(*seed, *seed>>1))
	start := time.Now()

	ids := make([]int32, 0, *nodes)
	for i := range *nodes {
		id, err := db.InsertNode(node{Key: uuid.NewString(), Kind: "load", Label: fmt.Sprintf("node %d", i)})
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return errors.New("load needs at least one node")
	}

	epoch := time.Now().Add(-*span)
	inserted := 0
	for range *rels {
		at := epoch.Add(time.Duration(rng.Int64N(int64(*span))))
		lhs, rhs := ids[rng.IntN(len(ids))], ids[rng.IntN(len(ids))]
		err := db.Relate(at, lhs, rhs, relMemberOf+uint32(rng.IntN(3)))
		if storage.IsDuplicate(err) {
			continue
		}
		if err != nil {
			return err
		}
		inserted++
	}
	if err := db.Sync(); err != nil {
		return err
	}

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	elapsed := time.Since(start)
	fmt.Printf("✅ Loaded %d nodes and %d relationships in %s\n", len(ids), inserted, elapsed.Round(time.Millisecond))
	printStats(stats)
	return nil
}

func runFind(env *environment, args []string) error {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: timegraph find <key>")
	}

	db, err := env.openEngine()
	if err != nil {
		return err
	}
	defer db.Close()

	id, found, err := db.FindNodeIDFromUniqueID(fs.Arg(0))
	if err != nil {
		return err
	}
	if !found {
		fmt.Printf("no node with key %q\n", fs.Arg(0))
		return nil
	}
	n, err := db.GetNode(id)
	if err != nil {
		return err
	}
	fmt.Printf("node %d: kind=%s label=%q\n", id, n.Kind, n.Label)
	return nil
}

func runVerify(env *environment, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)

	snap, err := storage.Inspect(env.cfg.GraphPath())
	if err != nil {
		return err
	}
	defer snap.Close()

	stats, err := snap.Stats(env.cfg.FillFactor)
	if err != nil {
		return err
	}
	printStats(stats)

	if err := snap.Verify(); err != nil {
		return err
	}
	fmt.Println("✅ relationship file is valid")
	return nil
}

func runDefrag(env *environment, args []string) error {
	fs := flag.NewFlagSet("defrag", flag.ExitOnError)
	fs.Parse(args)

	s, err := storage.Open(env.cfg.GraphPath(), storage.Options{
		FillFactor:         env.cfg.FillFactor,
		MaxShuffleDistance: env.cfg.MaxShuffleDistance,
		Logger:             env.logger,
		Metrics:            env.metrics,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Defrag(); err != nil {
		return err
	}
	if err := s.Sync(); err != nil {
		return err
	}
	stats, err := s.Stats()
	if err != nil {
		return err
	}
	fmt.Println("✅ defragmented")
	printStats(stats)
	return nil
}

func runDump(env *environment, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	var (
		limit   = fs.Int64("limit", 100, "Slots to print (0 for all)")
		fillers = fs.Bool("fillers", true, "Print filler slots")
	)
	fs.Parse(args)

	snap, err := storage.Inspect(env.cfg.GraphPath())
	if err != nil {
		return err
	}
	defer snap.Close()

	for slot, err := range snap.All() {
		if err != nil {
			return err
		}
		i, e := slot.Index, slot.Row
		if *limit > 0 && i >= *limit {
			fmt.Printf("... %d more slots\n", snap.Len()-i)
			break
		}
		if e.IsFiller() {
			if *fillers {
				fmt.Printf("%8d  ----\n", i)
			}
			continue
		}
		r := record.Decode(e)
		fmt.Printf("%8d  %s  lhs=%d rhs=%d rel=%d\n",
			i, r.Time().UTC().Format(time.RFC3339), r.LhsID, r.RhsID, r.RelationshipID)
	}
	return nil
}

func runInitConfig(env *environment, args []string) error {
	fs := flag.NewFlagSet("init-config", flag.ExitOnError)
	out := fs.String("out", "timegraph.yaml", "File to write")
	fs.Parse(args)

	if _, err := os.Stat(*out); err == nil {
		return fmt.Errorf("%s already exists", *out)
	}
	if err := env.cfg.Save(*out); err != nil {
		return err
	}
	fmt.Printf("✅ wrote %s\n", *out)
	return nil
}

func printStats(s storage.Stats) {
	fmt.Printf("   Slots:     %d\n", s.Rows)
	fmt.Printf("   Populated: %d\n", s.Populated)
	fmt.Printf("   Fillers:   %d (ideal %d)\n", s.Fillers, s.IdealFillers())
}
