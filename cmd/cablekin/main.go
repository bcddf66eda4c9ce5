package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/config"
	"github.com/san-kum/cablekin/internal/export"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/optim"
	"github.com/san-kum/cablekin/internal/robot"
	"github.com/san-kum/cablekin/internal/storage"
	"github.com/san-kum/cablekin/internal/structure"
	"github.com/san-kum/cablekin/internal/viz"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbose    bool
	theme      string
	// query overrides
	position    []float64
	orientation []float64
	wrench      []float64
	model       string
	method      string
	elastic     bool
	wrapIters   int
	// output
	save    bool
	svgOut  string
	pngOut  string
	view    string
	jsonOut string
	grid    []string
)

// main registers the commands and runs the explorer when none is given.
func main() {
	rootCmd := &cobra.Command{
		Use:           "cablekin",
		Short:         "cable robot kinematics and statics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			viz.SetTheme(theme)
		},
		RunE: runExplore,
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".cablekin", "data directory")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "robot file (yaml)")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", config.DefaultPreset, "built-in robot when no config is given")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log solver progress")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", viz.ThemeCyberpunk.Name, "color theme ("+strings.Join(viz.ThemeNames(), ", ")+")")
	addQueryFlags(rootCmd)

	ikCmd := &cobra.Command{
		Use:   "ik",
		Short: "cable lengths and tensions for a platform pose",
		Args:  cobra.NoArgs,
		RunE:  runIK,
	}
	addQueryFlags(ikCmd)
	ikCmd.Flags().BoolVar(&save, "save", false, "store the result in the data directory")
	ikCmd.Flags().StringVar(&svgOut, "svg", "", "write the cable shapes to an svg file")
	ikCmd.Flags().StringVar(&pngOut, "png", "", "write the cable shapes to a png file")
	ikCmd.Flags().StringVar(&view, "view", string(export.ViewXZ), "projection for --svg and --png (xy, xz, yz)")

	forcesCmd := &cobra.Command{
		Use:   "forces",
		Short: "force distribution with massless cables",
		Args:  cobra.NoArgs,
		RunE:  runForces,
	}
	addQueryFlags(forcesCmd)

	structureCmd := &cobra.Command{
		Use:   "structure",
		Short: "print the structure matrix, its rank and null space",
		Args:  cobra.NoArgs,
		RunE:  runStructure,
	}
	addQueryFlags(structureCmd)

	wrapCmd := &cobra.Command{
		Use:   "wrap",
		Short: "pulley swivel and wrap angles for a pose",
		Args:  cobra.NoArgs,
		RunE:  runWrap,
	}
	addQueryFlags(wrapCmd)

	exploreCmd := &cobra.Command{
		Use:   "explore",
		Short: "move the platform interactively",
		Args:  cobra.NoArgs,
		RunE:  runExplore,
	}
	addQueryFlags(exploreCmd)

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid-search catenary solver options for the query",
		Args:  cobra.NoArgs,
		RunE:  runTune,
	}
	addQueryFlags(tuneCmd)
	tuneCmd.Flags().StringArrayVar(&grid, "grid", []string{"penalty_initial=1,10,100", "penalty_growth=2,5,10"}, "option values to try, key=v1,v2 (repeatable)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in robots",
		Args:  cobra.NoArgs,
		RunE:  listPresets,
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "write a robot file from a preset",
		Args:  cobra.ExactArgs(1),
		RunE:  initConfig,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored results",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "print a stored result",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export a stored result as json",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}
	exportCmd.Flags().StringVarP(&jsonOut, "out", "o", "", "output file (default stdout)")

	rootCmd.AddCommand(ikCmd, forcesCmd, structureCmd, wrapCmd, exploreCmd, tuneCmd,
		presetsCmd, initCmd, listCmd, showCmd, exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Float64SliceVar(&position, "pos", nil, "platform position x,y,z (m)")
	cmd.Flags().Float64SliceVar(&orientation, "rpy", nil, "platform roll,pitch,yaw (deg)")
	cmd.Flags().Float64SliceVar(&wrench, "wrench", nil, "external wrench fx,fy,fz,mx,my,mz")
	cmd.Flags().StringVar(&model, "model", "", "cable model: catenary, pulley or straight")
	cmd.Flags().StringVar(&method, "method", "", "catenary inner minimizer ("+strings.Join(optim.Methods(), ", ")+")")
	cmd.Flags().BoolVar(&elastic, "elastic", false, "let catenary cables stretch")
	cmd.Flags().IntVar(&wrapIters, "wrap-iterations", 0, "catenary wrap refinement passes")
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// loadConfig reads --config or --preset and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	} else {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (available: %s)", preset, strings.Join(config.ListPresets(), ", "))
		}
	}

	flags := cmd.Flags()
	if flags.Changed("pos") {
		if len(position) != 3 {
			return nil, fmt.Errorf("--pos needs 3 values, got %d", len(position))
		}
		copy(cfg.Query.Position[:], position)
	}
	if flags.Changed("rpy") {
		if len(orientation) != 3 {
			return nil, fmt.Errorf("--rpy needs 3 values, got %d", len(orientation))
		}
		cfg.Query.Orientation = orientation
	}
	if flags.Changed("wrench") {
		cfg.Query.Wrench = wrench
	}
	if flags.Changed("model") {
		cfg.Query.Model = model
	}
	if flags.Changed("method") {
		cfg.Solver.Method = method
	}
	if flags.Changed("elastic") {
		cfg.Solver.Elastic = elastic
	}
	if flags.Changed("wrap-iterations") {
		cfg.Solver.WrapIterations = wrapIters
	}
	if cfg.Query.Model == "" {
		cfg.Query.Model = config.ModelCatenary
	}
	return cfg, nil
}

// session is everything a query command needs.
type session struct {
	cfg    *config.Config
	robot  *robot.Robot
	pose   geom.Pose
	opts   catenary.Options
	logger *zap.Logger
}

func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	rb, err := cfg.Robot.ToRobot()
	if err != nil {
		return nil, err
	}
	pose, err := cfg.Query.Pose()
	if err != nil {
		return nil, fmt.Errorf("query pose: %w", err)
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.Solver.CatenaryOptions(logger)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, robot: rb, pose: pose, opts: opts, logger: logger}, nil
}

func (s *session) solve(ctx context.Context, pose geom.Pose) (*answer, error) {
	return solveQuery(ctx, s.robot, pose, s.cfg.Query.Wrench, s.cfg.Query.Model, s.opts)
}

func runIK(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	a, err := s.solve(cmd.Context(), s.pose)
	if a == nil {
		return err
	}
	printAnswer(os.Stdout, s.robot, a)
	if err != nil {
		// the last iterate was printed; still report the failure
		return err
	}

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		runID, err := st.Save(a.run)
		if err != nil {
			return err
		}
		fmt.Printf("\nsaved: %s\n", runID)
	}
	if svgOut != "" || pngOut != "" {
		v, err := export.ParseView(view)
		if err != nil {
			return err
		}
		if err := writeShapes(a, v, s.robot.Name); err != nil {
			return err
		}
	}
	return nil
}

func writeShapes(a *answer, v export.View, title string) error {
	if svgOut != "" {
		svg := export.CablesToSVG(a.lines, v, 800, 600)
		if svg == "" {
			return errors.New("nothing to draw")
		}
		if err := os.WriteFile(svgOut, []byte(svg), 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", svgOut)
	}
	if pngOut != "" {
		p, err := export.CablesPlot(a.lines, v, title)
		if err != nil {
			return err
		}
		if err := export.SavePNG(p, 6, pngOut); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", pngOut)
	}
	return nil
}

func printAnswer(w io.Writer, rb *robot.Robot, a *answer) {
	st := viz.CurrentTheme.Styles()
	m := a.run.Meta
	fmt.Fprintln(w, st.Header.Render(strings.ToUpper(rb.Name)))
	fmt.Fprintln(w, st.KeyValue("Pattern", m.Pattern))
	fmt.Fprintln(w, st.KeyValue("Model", a.model))
	fmt.Fprintln(w, st.KeyValue("Position", fmt.Sprintf("%.4f %.4f %.4f", m.Position[0], m.Position[1], m.Position[2])))
	fmt.Fprintln(w, st.KeyValue("Status", st.Status(a.status)))
	if a.status != "infeasible" {
		fmt.Fprintln(w, st.KeyValue("Residual", fmt.Sprintf("%.3e N", a.residual)))
	}
	if it, ok := m.Diagnostics["iterations"]; ok {
		fmt.Fprintln(w, st.KeyValue("Iterations", fmt.Sprintf("%.0f", it)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.CableTable(a.rows))
	if a.status != "infeasible" {
		fmt.Fprintln(w, viz.TensionChart(a.tensions(), "tension per cable (N)"))
	}
}

func runForces(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	m := s.cfg.Query.Model
	if m == config.ModelCatenary {
		m = config.ModelPulley
	}
	a, err := solveMassless(s.robot, s.pose, s.cfg.Query.Wrench, m)
	if a == nil {
		return err
	}
	printAnswer(os.Stdout, s.robot, a)

	var inf *cdpr.InfeasibleError
	if errors.As(err, &inf) {
		fmt.Printf("\nclamped before giving up: %v (%d free, %d rows)\n", inf.Clamped, inf.Active, inf.Rows)
		return err
	}
	if err != nil {
		return err
	}
	if len(a.dist.Clamped) > 0 {
		fmt.Printf("\nclamped: %v after %d iterations\n", a.dist.Clamped, a.dist.Iterations)
	}
	return nil
}

func runStructure(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	var res *kinematics.Result
	if s.cfg.Query.Model == config.ModelStraight {
		res, err = kinematics.Straight(s.robot, s.pose)
	} else {
		res, err = kinematics.Pulleys(s.robot, s.pose)
	}
	if err != nil {
		return err
	}
	a, err := res.Structure(s.robot)
	if err != nil {
		return err
	}
	rows, cols := a.Dims()
	fmt.Printf("structure matrix (%d x %d, pattern %s):\n", rows, cols, s.robot.Pattern)
	fmt.Printf("%.4f\n\n", mat.Formatted(a, mat.Squeeze()))
	fmt.Printf("rank: %d\n", structure.Rank(a))

	ns, err := structure.NullSpace(a)
	if err != nil {
		return err
	}
	if _, k := ns.Dims(); k == 0 {
		fmt.Println("null space: empty")
		return nil
	}
	fmt.Printf("null space:\n%.4f\n", mat.Formatted(ns, mat.Squeeze()))
	return nil
}

func runWrap(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	res, err := kinematics.Pulleys(s.robot, s.pose)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CABLE\tSWIVEL\tWRAP\tFREE\tLENGTH\tEXIT")
	for _, c := range res.Cables {
		p := c.Wrap
		fmt.Fprintf(w, "%d\t%.3f°\t%.3f°\t%.4f\t%.4f\t(%.4f, %.4f, %.4f)\n",
			c.Index,
			geom.ToDeg(p.Swivel),
			geom.ToDeg(p.Wrap),
			p.Free,
			p.Length,
			p.Exit.X, p.Exit.Y, p.Exit.Z,
		)
	}
	return w.Flush()
}

func runExplore(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()
	// log lines would tear the full-screen view
	s.opts.Logger = zap.NewNop()

	var euler geom.Euler
	switch o := s.cfg.Query.Orientation; len(o) {
	case 0:
	case 3:
		euler = geom.Euler{Roll: geom.Deg(o[0]), Pitch: geom.Deg(o[1]), Yaw: geom.Deg(o[2])}
	default:
		return fmt.Errorf("explore needs the query orientation as roll, pitch, yaw; got %d values", len(o))
	}

	query := func(ctx context.Context, pose geom.Pose) (*viz.Frame, error) {
		a, err := s.solve(ctx, pose)
		if a == nil {
			return nil, err
		}
		return a.frame(), err
	}
	q := s.cfg.Query.Position
	start := r3.Vec{X: q[0], Y: q[1], Z: q[2]}
	m := viz.NewExplorer(s.robot.Name+" · "+s.cfg.Query.Model, start, euler, query)
	return viz.RunExplorer(m)
}

// runTune ranks option sets by the inner iterations of a converged solve.
func runTune(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.logger.Sync()

	g, err := optim.ParseGrid(grid)
	if err != nil {
		return err
	}
	fmt.Printf("trying %d option sets on %s\n", g.Size(), s.robot.Name)

	trial := func(ctx context.Context, o map[string]float64) (float64, error) {
		opts := s.opts
		merged := make(map[string]float64, len(s.cfg.Solver.Options)+len(o))
		for k, v := range s.cfg.Solver.Options {
			merged[k] = v
		}
		for k, v := range o {
			merged[k] = v
		}
		solver, err := optim.ParseOptions(merged)
		if err != nil {
			return 0, err
		}
		opts.Solver = solver
		res, err := catenary.Solve(ctx, s.robot, s.pose, s.cfg.Query.Wrench, opts)
		if err != nil {
			s.logger.Debug("trial failed", zap.Any("options", o), zap.Error(err))
			return 0, err
		}
		d := res.Diagnostics
		s.logger.Debug("trial", zap.Any("options", o), zap.Int("inner", d.InnerIterations), zap.Duration("runtime", d.Runtime))
		return float64(d.InnerIterations), nil
	}

	best, cost, err := g.Search(cmd.Context(), trial)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	st := viz.CurrentTheme.Styles()
	fmt.Println(st.Header.Render("BEST"))
	for _, k := range keys {
		fmt.Println(st.KeyValue(k, fmt.Sprintf("%g", best[k])))
	}
	fmt.Println(st.KeyValue("inner its", fmt.Sprintf("%.0f", cost)))
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATTERN\tCABLES\tMODEL")
	for _, name := range config.ListPresets() {
		cfg := config.GetPreset(name)
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", name, cfg.Robot.Pattern, len(cfg.Robot.Cables), cfg.Query.Model)
	}
	return w.Flush()
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg := config.GetPreset(preset)
	if cfg == nil {
		return fmt.Errorf("unknown preset %q", preset)
	}
	if _, err := os.Stat(args[0]); err == nil {
		return fmt.Errorf("%s already exists", args[0])
	}
	if err := config.Save(args[0], cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%s)\n", args[0], preset)
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROBOT\tMODEL\tTIME\tSTATUS\tPOSITION")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.3f %.3f %.3f\n",
			run.ID,
			run.Robot,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Status,
			run.Position[0], run.Position[1], run.Position[2],
		)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	run, err := st.LoadRun(args[0])
	if err != nil {
		return err
	}

	s := viz.CurrentTheme.Styles()
	m := run.Meta
	fmt.Println(s.Header.Render(m.ID))
	fmt.Println(s.KeyValue("Robot", m.Robot+" ("+m.Pattern+")"))
	fmt.Println(s.KeyValue("Model", m.Model))
	fmt.Println(s.KeyValue("Time", m.Timestamp.Format("2006-01-02 15:04:05")))
	fmt.Println(s.KeyValue("Position", fmt.Sprintf("%.4f %.4f %.4f", m.Position[0], m.Position[1], m.Position[2])))
	fmt.Println(s.KeyValue("Wrench", fmt.Sprintf("%v", m.Wrench)))
	fmt.Println(s.KeyValue("Status", s.Status(m.Status)))

	keys := make([]string, 0, len(m.Diagnostics))
	for k := range m.Diagnostics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Println(s.KeyValue(k, fmt.Sprintf("%.6g", m.Diagnostics[k])))
	}

	rows := make([]viz.CableRow, len(run.Cables))
	tensions := make([]float64, len(run.Cables))
	for i, c := range run.Cables {
		rows[i] = viz.CableRow{
			Index:      c.Index,
			Length:     c.Length,
			Unstrained: c.Unstrained,
			Tension:    c.Tension,
			Swivel:     c.Swivel,
			Wrap:       c.Wrap,
		}
		tensions[i] = c.Tension
	}
	fmt.Println()
	fmt.Println(s.CableTable(rows))
	fmt.Println(viz.TensionChart(tensions, "tension per cable (N)"))
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	run, err := st.LoadRun(args[0])
	if err != nil {
		return err
	}
	if jsonOut != "" {
		return storage.ExportJSONFile(jsonOut, run)
	}
	return storage.ExportJSON(os.Stdout, run)
}
