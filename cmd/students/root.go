package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kursadbilgin/mailrunner/internal/config"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/observability"
	"github.com/kursadbilgin/mailrunner/internal/output"
	"github.com/kursadbilgin/mailrunner/internal/repository"
	"github.com/kursadbilgin/mailrunner/internal/service"
	"github.com/spf13/cobra"
)

type runtimeState struct {
	envFile  string
	dataFile string
	writer   io.Writer
	svc      *service.StudentService
}

type studentView struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Age   string `json:"age" yaml:"age"`
	Class string `json:"class" yaml:"class"`
	Phone string `json:"phone" yaml:"phone"`
}

func newRootCommand(w io.Writer) *cobra.Command {
	rt := &runtimeState{writer: w}

	root := &cobra.Command{
		Use:          "students",
		Short:        "Manage student records",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if _, err := config.LoadDotEnv(rt.envFile); err != nil {
				return err
			}
			cfg, err := config.LoadStudents()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("file") {
				rt.dataFile = cfg.DataFile
			}

			logger, err := observability.NewLogger(cfg.LogLevel, observability.WithConsoleEncoding())
			if err != nil {
				return err
			}

			svc, err := service.NewStudentService(repository.NewFileStudentRepo(rt.dataFile, logger), logger)
			if err != nil {
				return err
			}
			rt.svc = svc
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.envFile, "env-file", ".env", "Path to a .env file; variables already set win")
	root.PersistentFlags().StringVar(&rt.dataFile, "file", "data/students.json", "Student store (default STUDENTS_FILE)")

	root.AddCommand(
		newAddCommand(rt),
		newListCommand(rt),
		newUpdateCommand(rt),
		newDeleteCommand(rt),
	)

	return root
}

func newAddCommand(rt *runtimeState) *cobra.Command {
	var student domain.Student

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a student",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			added, err := rt.svc.Add(cmd.Context(), student)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.writer, "Student added successfully with id %s\n", added.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&student.Name, "name", "", "Student name")
	cmd.Flags().StringVar(&student.Age, "age", "", "Student age")
	cmd.Flags().StringVar(&student.Class, "class", "", "Class")
	cmd.Flags().StringVar(&student.Phone, "phone", "", "Phone number")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newListCommand(rt *runtimeState) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List students ordered by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			students, err := rt.svc.List(cmd.Context())
			if err != nil {
				return err
			}

			if f == output.FormatTable {
				output.WriteStudentTable(rt.writer, students)
				return nil
			}
			views := make([]studentView, 0, len(students))
			for _, s := range students {
				views = append(views, studentView(s))
			}
			return output.WriteObject(rt.writer, f, views)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "table", "Output format: table, json, yaml")

	return cmd
}

func newUpdateCommand(rt *runtimeState) *cobra.Command {
	var name, age, class, phone string

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update the given fields of a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.StudentPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("age") {
				patch.Age = &age
			}
			if flags.Changed("class") {
				patch.Class = &class
			}
			if flags.Changed("phone") {
				patch.Phone = &phone
			}

			if _, err := rt.svc.Update(cmd.Context(), args[0], patch); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.writer, "Student updated successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&age, "age", "", "New age")
	cmd.Flags().StringVar(&class, "class", "", "New class")
	cmd.Flags().StringVar(&phone, "phone", "", "New phone number")

	return cmd
}

func newDeleteCommand(rt *runtimeState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.svc.Delete(cmd.Context(), strings.TrimSpace(args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.writer, "Student deleted successfully")
			return nil
		},
	}
}
