package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wbrown/janus-replay/replay/annotations"
	"github.com/wbrown/janus-replay/replay/config"
	"github.com/wbrown/janus-replay/replay/engine"
	"github.com/wbrown/janus-replay/replay/query"
	"github.com/wbrown/janus-replay/replay/relation"
	"github.com/wbrown/janus-replay/replay/server"
	"github.com/wbrown/janus-replay/replay/snapshot"
)

var commands = []struct {
	name   string
	params []string
	help   string
}{
	{"serve", nil, "serve the HTTP API"},
	{"maps", []string{query.ParamTitle, query.ParamPlayer, query.ParamPlayer1, query.ParamPlayer2,
		query.ParamFileName, query.ParamFileHash, query.ParamRecordID,
		query.ParamMinDate, query.ParamMaxDate}, "per-map statistics"},
	{"players", []string{query.ParamName, query.ParamFileName, query.ParamFileHash,
		query.ParamRecordID, query.ParamMinDate, query.ParamMaxDate}, "per-player statistics"},
	{"frequency", []string{query.ParamTitle, query.ParamPlayer}, "matches per map"},
	{"units", []string{query.ParamFileHash, query.ParamPlayer, query.ParamUnitTypeName,
		query.ParamGameLoop}, "unit spawn events"},
	{"meta", nil, "snapshot size and age"},
	{"summary", nil, "analyzed snapshot summary"},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Replay statistics over a match snapshot.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.help)
	}
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s serve -dir snapshot -addr :8080\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s maps -player_1 serral -player_2 clem\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s players -name serral -exact_name -verbose\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s units -file_hash 3fa2 -player '' -json\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nRun '%s <command> -h' for the options of a command.\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "help" {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]

	var params []string
	found := false
	for _, c := range commands {
		if c.name == name {
			params, found = c.params, true
		}
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if err := cfg.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	flags := flag.NewFlagSet(name, flag.ExitOnError)
	cfg.RegisterFlags(flags)
	asJSON := flags.Bool("json", false, "print the response envelope as JSON")
	for _, p := range params {
		flags.String(p, "", p+" filter")
	}
	if name == "players" {
		flags.Bool(query.ParamExactName, false, "match the name exactly")
	}
	flags.Parse(os.Args[2:])

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Only flags given on the command line become request parameters, so
	// an explicit empty -player still reaches the decoder
	isParam := map[string]bool{query.ParamExactName: true}
	for _, p := range params {
		isParam[p] = true
	}
	values := url.Values{}
	flags.Visit(func(f *flag.Flag) {
		if isParam[f.Name] {
			values.Set(f.Name, f.Value.String())
		}
	})

	reg := prometheus.NewRegistry()
	opts := engine.Options{
		SourceDir:  cfg.SourceDir,
		Workers:    cfg.Workers,
		Logger:     logger,
		Registerer: reg,
	}
	if cfg.Verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		opts.Handler = annotations.Handler(formatter.Handle)
	}
	env := engine.NewEnv(opts)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var code int
	if name == "serve" {
		code = serve(ctx, env, reg, cfg, logger)
	} else {
		code = runQuery(ctx, env, name, values, *asJSON)
	}
	cancel()
	if err := env.Close(); err != nil {
		level.Warn(logger).Log("msg", "failed to close snapshot", "err", err)
	}
	os.Exit(code)
}

func serve(ctx context.Context, env *engine.Env, reg *prometheus.Registry, cfg config.Config, logger log.Logger) int {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := env.Refresh(); err != nil {
		level.Warn(logger).Log("msg", "snapshot not loaded, queries will retry", "dir", cfg.SourceDir, "err", err)
	}

	// SIGHUP reloads the snapshot
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := env.Refresh(); err != nil {
					level.Error(logger).Log("msg", "failed to reload snapshot", "err", err)
				}
			}
		}
	}()

	srv := server.New(env, logger, reg)
	if err := srv.ListenAndServe(ctx, cfg.Addr); err != nil {
		level.Error(logger).Log("msg", "server error", "err", err)
		return 1
	}
	return 0
}

func runQuery(ctx context.Context, env *engine.Env, name string, values url.Values, asJSON bool) int {
	start := time.Now()
	var (
		res     interface{ Err() error }
		headers []string
		rows    [][]string
	)

	switch name {
	case "maps":
		req, err := query.MapRequestFromValues(values)
		if err != nil {
			return fail(err)
		}
		out := engine.Maps(ctx, env, req)
		res, headers, rows = out, []string{"title", "count", "first_seen", "last_seen", "latest_record_id", "top_participants"}, mapRows(out.Data)
	case "players":
		req, err := query.PlayerRequestFromValues(values)
		if err != nil {
			return fail(err)
		}
		out := engine.Players(ctx, env, req)
		res, headers, rows = out, []string{"toon", "clan", "player_name", "count", "last_seen", "top_maps", "race_stats"}, playerRows(out.Data)
	case "frequency":
		out := engine.MapFrequencies(ctx, env, query.MapFrequencyRequestFromValues(values))
		res, headers = out, []string{"title", "count"}
		for _, f := range out.Data {
			rows = append(rows, []string{f.Title, strconv.FormatInt(f.Count, 10)})
		}
	case "units":
		req, err := query.UnitBornRequestFromValues(values)
		if err != nil {
			return fail(err)
		}
		out := engine.UnitBorn(ctx, env, req)
		res, headers = out, []string{"unit_type_name", "x", "y", "game_loop"}
		for _, u := range out.Data {
			rows = append(rows, []string{u.UnitTypeName, formatFloat(u.X), formatFloat(u.Y), strconv.FormatInt(u.GameLoop, 10)})
		}
	case "meta":
		out := engine.SnapshotMeta(ctx, env)
		res, headers = out, []string{"total_byte_size", "last_modified_at"}
		for _, m := range out.Data {
			rows = append(rows, metaRow(m))
		}
	case "summary":
		out := engine.Summary(ctx, env)
		res, headers = out, []string{"min_date", "max_date", "num_files", "num_maps", "num_players"}
		for _, s := range out.Data {
			rows = append(rows, []string{s.MinDate, s.MaxDate, humanize.Comma(s.NumFiles),
				humanize.Comma(s.NumMaps), humanize.Comma(s.NumPlayers)})
		}
	}
	elapsed := time.Since(start)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fail(err)
		}
	}
	if err := res.Err(); err != nil {
		return fail(err)
	}
	if asJSON {
		return 0
	}

	// Display results as a markdown table with timing on the row count line
	table := relation.NewTableFormatter().FormatRows(headers, rows)
	lines := strings.Split(table, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "_") && strings.HasSuffix(lines[i], "rows_") {
			lines[i] = strings.TrimSuffix(lines[i], "_") + fmt.Sprintf(" (%.3fms)_", float64(elapsed.Microseconds())/1000.0)
			break
		}
	}
	fmt.Print(strings.Join(lines, "\n"))
	return 0
}

func fail(err error) int {
	if errors.Is(err, query.ErrInvalidParameter) {
		fmt.Fprintf(os.Stderr, "Invalid parameter: %v\n", err)
		return 2
	}
	fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
	return 1
}

func mapRows(stats []engine.MapStats) [][]string {
	rows := make([][]string, len(stats))
	for i, m := range stats {
		rows[i] = []string{m.Title, humanize.Comma(m.Count), m.FirstSeen, m.LastSeen,
			m.LatestRecordID, strings.Join(m.TopParticipants, ", ")}
	}
	return rows
}

func playerRows(stats []engine.PlayerStats) [][]string {
	rows := make([][]string, len(stats))
	for i, p := range stats {
		races := make([]string, len(p.RaceStats))
		for j, r := range p.RaceStats {
			races[j] = fmt.Sprintf("%s %d (%dW/%dL)", r.Race, r.Count, r.Wins, r.Losses)
		}
		rows[i] = []string{p.Toon.String(), p.Clan, p.Name, humanize.Comma(p.Count), p.LastSeen,
			strings.Join(p.TopMaps, ", "), strings.Join(races, ", ")}
	}
	return rows
}

func metaRow(m snapshot.Meta) []string {
	return []string{
		fmt.Sprintf("%s (%d)", humanize.Bytes(uint64(m.TotalByteSize)), m.TotalByteSize),
		fmt.Sprintf("%s (%s)", m.LastModifiedAt.Format(time.RFC3339), humanize.Time(m.LastModifiedAt)),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
