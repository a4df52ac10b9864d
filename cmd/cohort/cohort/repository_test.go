package cohort

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"

	"github.com/kaicode/barts-cohort-tool/cmd/cohort/terminology"
)

func testRepository(t *testing.T) *SearchRepository {
	t.Helper()
	repo, err := NewSearchRepository(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create search repository: %v", err)
	}
	return repo
}

func TestSaveRoundTrip(t *testing.T) {
	g := NewWithT(t)
	repo := testRepository(t)

	def := CohortDefinition{
		Title:     "Diabetes Cohort",
		Gender:    AllCategories(),
		Ethnicity: ExplicitCategories(terminology.Coding{Code: "A", Display: "White - British"}),
		AgeRange:  AgeRange{Min: 18, Max: 80},
		MustHaveFindings: []Finding{{
			CodesWithDetails: []CodeDetail{{Code: "73211009", Display: "Diabetes mellitus"}},
		}},
	}

	g.Expect(repo.Save(def)).To(Succeed())

	loaded, err := repo.Load("Diabetes Cohort")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded).To(Equal(def))
}

func TestSaveFilenameHasNoSpaces(t *testing.T) {
	g := NewWithT(t)
	repo := testRepository(t)

	def := testDefinition()
	def.Title = "Diabetes Cohort Over 60"
	g.Expect(repo.Save(def)).To(Succeed())

	entries, err := os.ReadDir(repo.dir)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(entries).To(HaveLen(1))
	g.Expect(entries[0].Name()).To(Equal("Diabetes_Cohort_Over_60.json"))
	g.Expect(entries[0].Name()).NotTo(ContainSubstring(" "))
}

func TestSaveOverwritesSameTitle(t *testing.T) {
	g := NewWithT(t)
	repo := testRepository(t)

	first := testDefinition()
	first.AgeRange = AgeRange{Min: 18, Max: 40}
	g.Expect(repo.Save(first)).To(Succeed())

	second := testDefinition()
	second.AgeRange = AgeRange{Min: 50, Max: 99}
	g.Expect(repo.Save(second)).To(Succeed())

	loaded, err := repo.Load(second.Title)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(loaded.AgeRange).To(Equal(AgeRange{Min: 50, Max: 99}))
}

func TestSaveUnwritableDirectoryReportsPersistenceError(t *testing.T) {
	g := NewWithT(t)

	dir := t.TempDir()
	repo, err := NewSearchRepository(dir, zerolog.Nop())
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(os.RemoveAll(dir)).To(Succeed())

	err = repo.Save(testDefinition())
	g.Expect(err).To(HaveOccurred())
	g.Expect(strings.Contains(err.Error(), filepath.Join(dir, "T1.json"))).To(BeTrue())
}

func TestLoadMissingTitle(t *testing.T) {
	g := NewWithT(t)
	repo := testRepository(t)

	_, err := repo.Load("never saved")
	g.Expect(err).To(HaveOccurred())
}
