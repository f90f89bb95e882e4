package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mutaline/internal/config"
	"mutaline/internal/db"
	"mutaline/internal/domain"
	"mutaline/internal/engine"
	"mutaline/internal/migrate"
	"mutaline/internal/repo"
	"mutaline/internal/sched"
	"mutaline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ml",
	Short: "Mutaline CLI",
	Long: `Mutaline manages job transfer (mutation) requests for a public administration.
Core concepts:
- Workspace: the .mutaline directory holding the SQLite database; rules live in mutaline.yml.
- Agents: civil servants with a matricule, grade, service and posting history.
- Postes: positions an agent can hold; LIBRE, OCCUPE or CRITIQUE.
- Demandes: mutation requests moving through a fixed approval chain
  (RESPONSABLE -> DGR -> CVR -> DNCF); only DNCF closes a demande.
- Validations: one immutable record per gate decision; a rejection below
  DNCF still forwards the demande with its unfavourable opinion attached.
- Affectations: the assignment history rows the mutation engine writes when
  an accepted demande is applied, immediately or on its effective date.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ML")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(posteCmd())
	rootCmd.AddCommand(demandeCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", cfgPath)
			} else {
				fmt.Printf("Config %s already exists, keeping it\n", cfgPath)
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("Database ready at %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config is the rulebook in mutaline.yml: eligibility rules (minimum seniority, free poste, matching grade), the priority weight and the sweep interval.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err == nil {
				err = cfg.Validate()
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func agentCmd() *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Manage agents",
		Long:  "Agents are the civil servants of the administration. Each carries a matricule, a grade, a service and its full posting history.",
	}
	agent.AddCommand(agentCreateCmd())
	agent.AddCommand(agentListCmd())
	agent.AddCommand(agentGetCmd())
	agent.AddCommand(agentDeleteCmd())
	agent.AddCommand(agentHistoryCmd())
	return agent
}

func agentCreateCmd() *cobra.Command {
	var opts engine.AgentCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAgent(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Matricule, "matricule", "", "matricule")
	cmd.Flags().StringVar(&opts.Nom, "nom", "", "family name")
	cmd.Flags().StringVar(&opts.Prenom, "prenom", "", "given name")
	cmd.Flags().StringVar(&opts.DateNaissance, "date-naissance", "", "birth date (RFC3339)")
	cmd.Flags().StringVar(&opts.DateEmbauche, "date-embauche", "", "hire date (RFC3339)")
	cmd.Flags().StringVar(&opts.NumeroCNI, "numero-cni", "", "national id number")
	cmd.Flags().StringVar(&opts.GradeID, "grade", "", "grade id")
	cmd.Flags().StringVar(&opts.ServiceID, "service", "", "service id")
	cmd.Flags().StringVar(&opts.LocaliteID, "localite", "", "localite id")
	_ = cmd.MarkFlagRequired("matricule")
	_ = cmd.MarkFlagRequired("nom")
	_ = cmd.MarkFlagRequired("prenom")
	_ = cmd.MarkFlagRequired("date-embauche")
	return cmd
}

func agentListCmd() *cobra.Command {
	var f repo.AgentFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				agents, err := e.Repo.ListAgents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(agents)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Matricule", "Nom", "Grade", "Service", "Statut", "Anciennete"})
				for _, a := range agents {
					anciennete, _ := engine.Anciennete(a.DateEmbauche, time.Now().UTC())
					tw.AppendRow(table.Row{a.ID, a.Matricule, a.Nom + " " + a.Prenom, deref(a.GradeID), deref(a.ServiceID), a.Statut, anciennete})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ServiceID, "service", "", "service filter")
	cmd.Flags().StringVar(&f.Statut, "statut", "", "statut filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func agentGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetAgent(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func agentDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteAgent(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func agentHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show an agent's posting history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAffectations(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Poste", "Debut", "Fin", "Motif"})
				for _, af := range items {
					tw.AppendRow(table.Row{af.PosteID, af.DateDebut, deref(af.DateFin), deref(af.MotifFin)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func posteCmd() *cobra.Command {
	poste := &cobra.Command{
		Use:   "poste",
		Short: "Manage postes",
		Long:  "Postes are the positions of the administration. Occupancy is written only by the mutation engine; a poste with assignment history can no longer be edited or deleted.",
	}
	poste.AddCommand(posteCreateCmd())
	poste.AddCommand(posteListCmd())
	poste.AddCommand(posteGetCmd())
	poste.AddCommand(posteUpdateCmd())
	poste.AddCommand(posteDeleteCmd())
	poste.AddCommand(posteAffecterCmd())
	poste.AddCommand(posteLibererCmd())
	return poste
}

func posteCreateCmd() *cobra.Command {
	var opts engine.PosteCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a poste",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreatePoste(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Intitule, "intitule", "", "title")
	cmd.Flags().StringVar(&opts.GradeRequis, "grade-requis", "", "required grade")
	cmd.Flags().StringVar(&opts.ServiceID, "service", "", "service id")
	cmd.Flags().StringVar(&opts.LocaliteID, "localite", "", "localite id")
	cmd.Flags().StringVar(&opts.Statut, "statut", "", "initial statut (LIBRE or CRITIQUE)")
	_ = cmd.MarkFlagRequired("intitule")
	return cmd
}

func posteListCmd() *cobra.Command {
	var f repo.PosteFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List postes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				postes, err := e.Repo.ListPostes(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(postes)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Intitule", "Grade requis", "Statut", "Occupant"})
				for _, p := range postes {
					tw.AppendRow(table.Row{p.ID, p.Intitule, deref(p.GradeRequis), p.Statut, deref(p.OccupantID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Statut, "statut", "", "statut filter")
	cmd.Flags().StringVar(&f.ServiceID, "service", "", "service filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func posteGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get poste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Repo.GetPoste(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func posteUpdateCmd() *cobra.Command {
	var intitule, gradeRequis, service, localite string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a poste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePoste(ctx, id,
					changedString(cmd, "intitule", &intitule),
					changedString(cmd, "grade-requis", &gradeRequis),
					changedString(cmd, "service", &service),
					changedString(cmd, "localite", &localite),
					viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&intitule, "intitule", "", "title")
	cmd.Flags().StringVar(&gradeRequis, "grade-requis", "", "required grade")
	cmd.Flags().StringVar(&service, "service", "", "service id")
	cmd.Flags().StringVar(&localite, "localite", "", "localite id")
	return cmd
}

func posteDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a poste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeletePoste(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func posteAffecterCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "affecter <id>",
		Short: "Assign an agent to a poste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.AssignAgentToPoste(ctx, id, agentID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func posteLibererCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "liberer <id>",
		Short: "Release a poste",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.ReleasePoste(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func demandeCmd() *cobra.Command {
	dem := &cobra.Command{
		Use:   "demande",
		Short: "Manage mutation requests",
		Long:  "Demandes flow BROUILLON -> EN_VALIDATION_HIERARCHIQUE -> EN_ETUDE_DGR -> EN_VERIFICATION_CVR -> EN_ETUDE_DNCF -> ACCEPTEE/REJETEE. Once submitted a demande can no longer be edited.",
	}
	dem.AddCommand(demandeCreateCmd())
	dem.AddCommand(demandeListCmd())
	dem.AddCommand(demandeGetCmd())
	dem.AddCommand(demandeSoumettreCmd())
	dem.AddCommand(demandeValiderCmd())
	dem.AddCommand(demandeAppliquerCmd())
	return dem
}

func demandeCreateCmd() *cobra.Command {
	var opts engine.DemandeCreateOptions
	var localites []string
	var strategique bool
	var roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mutation request",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.LocalitesSouhaitees = localites
			opts.CreatorRoles = roles
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var d domain.Demande
				var err error
				if strategique {
					opts.Type = domain.TypeStrategique
					d, err = e.CreateStrategique(ctx, opts)
				} else {
					d, err = e.CreateDemande(ctx, opts)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.AgentID, "agent", "", "agent id")
	cmd.Flags().StringVar(&opts.Motif, "motif", "", "reason")
	cmd.Flags().StringVar(&opts.PosteSouhaiteID, "poste", "", "desired poste id")
	cmd.Flags().StringArrayVar(&localites, "localite", []string{}, "desired localite (repeatable)")
	cmd.Flags().BoolVar(&strategique, "strategique", false, "create a STRATEGIQUE demande (starts at the DNCF gate)")
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "creator role (repeatable)")
	_ = cmd.MarkFlagRequired("motif")
	return cmd
}

func demandeListCmd() *cobra.Command {
	var f repo.DemandeFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mutation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListDemandes(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Agent", "Statut", "Date mutation"})
				for _, d := range items {
					tw.AppendRow(table.Row{d.ID, d.Type, deref(d.AgentID), d.Statut, deref(d.DateMutation)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Statut, "statut", "", "statut filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().StringVar(&f.AgentID, "agent", "", "agent filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func demandeGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get mutation request with its validations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDemande(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func demandeSoumettreCmd() *cobra.Command {
	var roles []string
	cmd := &cobra.Command{
		Use:   "soumettre <id>",
		Short: "Submit a draft into the approval chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Soumettre(ctx, id, roles, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "submitter role (repeatable)")
	return cmd
}

func demandeValiderCmd() *cobra.Command {
	var decision, commentaire, dateMutation string
	cmd := &cobra.Command{
		Use:   "valider <id>",
		Short: "Record the pending gate's decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.Repo.GetDemande(ctx, id)
				if err != nil {
					return err
				}
				gate, ok := domain.GateForStatus(d.Statut)
				if !ok {
					return fmt.Errorf("demande %s is %s and awaits no gate", id, d.Statut)
				}
				opts := engine.ValidationOptions{
					DemandeID:    id,
					Role:         gate,
					ValidateurID: viper.GetString("actor-id"),
					Decision:     decision,
					Commentaire:  commentaire,
					ActorID:      viper.GetString("actor-id"),
				}
				if dateMutation != "" {
					opts.DateMutation = &dateMutation
				}
				v, err := e.RecordValidation(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "VALIDE or REJETE")
	cmd.Flags().StringVar(&commentaire, "commentaire", "", "comment")
	cmd.Flags().StringVar(&dateMutation, "date-mutation", "", "effective date for a final approval (RFC3339)")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func demandeAppliquerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appliquer <id>",
		Short: "Apply an accepted mutation now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ApplyDemande(ctx, id, viper.GetString("actor-id")); err != nil {
					return err
				}
				d, err := e.GetDemande(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Users hold the chain roles (RESPONSABLE, DGR, CVR, DNCF, ADMIN). A RESPONSABLE attached to a service receives the notifications for its agents' demandes.",
	}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var u domain.User
	var roles []string
	var service, agent string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			u.ID = uuid.New().String()
			u.Roles = roles
			u.ServiceID = optionalString(service)
			u.AgentID = optionalString(agent)
			u.Active = true
			u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&u.Email, "email", "", "email")
	cmd.Flags().StringVar(&u.Nom, "nom", "", "display name")
	cmd.Flags().StringArrayVar(&roles, "role", []string{}, "role (repeatable)")
	cmd.Flags().StringVar(&service, "service", "", "service id")
	cmd.Flags().StringVar(&agent, "agent", "", "linked agent id")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("nom")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Nom", "Roles", "Service", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Nom, strings.Join(u.Roles, ","), deref(u.ServiceID), u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apikeyCreateCmd())
	cmd.AddCommand(apikeyListCmd())
	cmd.AddCommand(apikeyDeleteCmd())
	return cmd
}

func apikeyCreateCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			secret := "ml_" + hex.EncodeToString(raw)
			key := domain.APIKey{
				ID:      uuid.New().String(),
				OwnerID: owner,
				Name:    name,
				KeyHash: repo.HashAPIKey(secret),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "key": secret})
				}
				fmt.Printf("API key %s created. Store the secret now, it is not persisted:\n%s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, owner)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Apply due accepted mutations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RunSweep(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("%d candidates, %d applied, %d failed\n", res.Candidates, res.Applied, res.Failed)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The audit diary: demande transitions, gate decisions, assignments and releases.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var noSweep bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("ML_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("ML_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			var scheduler *sched.Scheduler
			if !noSweep {
				scheduler = sched.New(e)
				scheduler.Start()
				defer scheduler.Stop()
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Mutaline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "disable the periodic sweep")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func changedString(cmd *cobra.Command, flag string, v *string) *string {
	if cmd.Flags().Changed(flag) {
		return v
	}
	return nil
}
