package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liverow/liverow/schema"
)

// Catalog dump view types: yaml.v3 does not honor the descriptors' json
// tags, so the CLI keeps its own yaml-tagged projection.
type schemaDump struct {
	Tables []tableDump `yaml:"tables"`
}

type tableDump struct {
	Name          string       `yaml:"name"`
	Columns       []columnDump `yaml:"columns"`
	PrimaryKey    []string     `yaml:"primary_key,omitempty"`
	ForeignKeys   []fkDump     `yaml:"foreign_keys,omitempty"`
	Relationships []string     `yaml:"relationships,omitempty"`
}

type columnDump struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
	JSON     bool   `yaml:"json,omitempty"`
	Auto     bool   `yaml:"auto_increment,omitempty"`
}

type fkDump struct {
	Column     string `yaml:"column"`
	References string `yaml:"references"`
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Introspect the database and dump the discovered schema as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			cat := sess.Catalog()
			var dump schemaDump
			for _, name := range cat.Tables() {
				t, err := cat.Table(name)
				if err != nil {
					return err
				}
				dump.Tables = append(dump.Tables, dumpTable(t))
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(dump)
		},
	}
	return cmd
}

func dumpTable(t *schema.Table) tableDump {
	d := tableDump{Name: t.Name, PrimaryKey: t.PrimaryKey}
	for _, c := range t.Columns {
		d.Columns = append(d.Columns, columnDump{
			Name:     c.Name,
			Type:     c.Type,
			Nullable: c.Nullable,
			JSON:     c.JSON,
			Auto:     c.IsAutoIncrement,
		})
	}
	for _, fk := range t.ForeignKeys {
		d.ForeignKeys = append(d.ForeignKeys, fkDump{
			Column:     fk.ColumnName,
			References: fmt.Sprintf("%s.%s", fk.ReferencedTable, fk.ReferencedColumn),
		})
	}
	for name := range t.Relationships {
		d.Relationships = append(d.Relationships, name)
	}
	sort.Strings(d.Relationships)
	return d
}
