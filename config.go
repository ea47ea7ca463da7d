package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	port             int
	prefix           string
	profile          bool
	tlsCert          string
	tlsKey           string
	verbose          bool
	version          bool
	reconnectWindow  time.Duration
	roomExpiry       time.Duration
	reapInterval     time.Duration
	maxPlayers       int
	articlesPer      int
	researchTime     time.Duration
	lieTime          time.Duration
	presentationTime time.Duration
	voteTime         time.Duration
	liesChance       float64
	rounds           int
	truthPoints      int
	foolPoints       int
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayers < 3 {
		return fmt.Errorf("invalid max players (a game needs at least 3): %d", c.maxPlayers)
	}
	if c.liesChance < 0 || c.liesChance > 1 {
		return fmt.Errorf("invalid everyone-lies chance (must be between 0 and 1): %v", c.liesChance)
	}
	if c.truthPoints < 0 || c.foolPoints < 0 {
		return errors.New("point values must not be negative")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// roomConfig freezes the per-room settings a new room is created with.
func (c *Config) roomConfig() RoomConfig {
	return RoomConfig{
		MaxPlayers:       c.maxPlayers,
		ArticlesPer:      c.articlesPer,
		ResearchTime:     int(c.researchTime.Seconds()),
		LieTime:          int(c.lieTime.Seconds()),
		PresentationTime: int(c.presentationTime.Seconds()),
		VoteTime:         int(c.voteTime.Seconds()),
		LiesChance:       c.liesChance,
		Rounds:           c.rounds,
		TruthPoints:      c.truthPoints,
		FoolPoints:       c.foolPoints,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FAKEOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "fakeout...",
		Short:         "A realtime trivia bluffing game, where one expert hides the truth among lies.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: FAKEOUT_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: FAKEOUT_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: FAKEOUT_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: FAKEOUT_PROFILE)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: FAKEOUT_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: FAKEOUT_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: FAKEOUT_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: FAKEOUT_VERSION)")
	fs.DurationVar(&cfg.reconnectWindow, "reconnect-window", 30*time.Second, "grace period for a dropped player to reconnect (env: FAKEOUT_RECONNECT_WINDOW)")
	fs.DurationVar(&cfg.roomExpiry, "room-expiry", time.Hour, "time before hostless rooms are reclaimed (env: FAKEOUT_ROOM_EXPIRY)")
	fs.DurationVar(&cfg.reapInterval, "reap-interval", time.Minute, "how often expired rooms are swept (env: FAKEOUT_REAP_INTERVAL)")
	fs.IntVar(&cfg.maxPlayers, "max-players", 8, "maximum players per room (env: FAKEOUT_MAX_PLAYERS)")
	fs.IntVar(&cfg.articlesPer, "articles-per-player", 3, "candidate articles offered per player per research round (env: FAKEOUT_ARTICLES_PER_PLAYER)")
	fs.DurationVar(&cfg.researchTime, "research-time", 3*time.Minute, "duration of the writing phase (env: FAKEOUT_RESEARCH_TIME)")
	fs.DurationVar(&cfg.lieTime, "lie-time", time.Minute, "duration of the lie-writing phase (env: FAKEOUT_LIE_TIME)")
	fs.DurationVar(&cfg.presentationTime, "presentation-time", 2*time.Minute, "time allotted to each presented answer (env: FAKEOUT_PRESENTATION_TIME)")
	fs.DurationVar(&cfg.voteTime, "vote-time", 30*time.Second, "duration of the voting phase (env: FAKEOUT_VOTE_TIME)")
	fs.Float64Var(&cfg.liesChance, "everyone-lies-chance", 0.15, "chance an extra house lie is mixed in so the answer count is no tell (env: FAKEOUT_EVERYONE_LIES_CHANCE)")
	fs.IntVar(&cfg.rounds, "rounds", 0, "rounds per game, 0 for one per player (env: FAKEOUT_ROUNDS)")
	fs.IntVar(&cfg.truthPoints, "truth-points", 500, "points for voting for the truth (env: FAKEOUT_TRUTH_POINTS)")
	fs.IntVar(&cfg.foolPoints, "fool-points", 250, "points per voter fooled by your lie (env: FAKEOUT_FOOL_POINTS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("fakeout v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
