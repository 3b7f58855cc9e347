package loader

import (
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGzCSV(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeTestDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeGzCSV(t, filepath.Join(root, "hosp", "patients.csv.gz"),
		"subject_id,gender,anchor_age",
		"10001,F,52",
		"10002,M,67",
	)
	writeGzCSV(t, filepath.Join(root, "hosp", "admissions.csv.gz"),
		"subject_id,hadm_id,admission_type,diagnosis",
		"10001,20001,EMERGENCY,CHEST PAIN",
	)
	writeGzCSV(t, filepath.Join(root, "hosp", "diagnoses_icd.csv.gz"),
		"subject_id,icd_code",
		"10001,I10",
	)
	writeGzCSV(t, filepath.Join(root, "hosp", "prescriptions.csv.gz"),
		"subject_id,drug,dose_val_rx,dose_unit_rx",
		"10001,Aspirin,81,mg",
	)
	writeGzCSV(t, filepath.Join(root, "hosp", "d_icd_diagnoses.csv.gz"),
		"icd_code,long_title",
		"I10,Essential hypertension",
	)
	return root
}

func TestLoadDir(t *testing.T) {
	ds, err := LoadDir(writeTestDataset(t))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	patients := ds.Patients()
	if len(patients) != 2 {
		t.Fatalf("patients = %d, want 2", len(patients))
	}

	p := patients[0]
	if p.PatientID != "10001" {
		t.Fatalf("first patient = %s, want 10001 (sorted)", p.PatientID)
	}
	if p.Demographics["gender"] != "F" || p.Demographics["anchor_age"] != "52" {
		t.Errorf("demographics = %v", p.Demographics)
	}
	if len(p.Admissions) != 1 || p.Admissions[0]["hadm_id"] != "20001" {
		t.Errorf("admissions = %v", p.Admissions)
	}
	if p.AdmissionID() != "20001" {
		t.Errorf("AdmissionID = %q", p.AdmissionID())
	}
	if len(p.Diagnoses) != 1 || len(p.Prescriptions) != 1 {
		t.Errorf("diagnoses/prescriptions = %d/%d", len(p.Diagnoses), len(p.Prescriptions))
	}

	// Patient without rows in the other tables still loads.
	if p2 := patients[1]; len(p2.Admissions) != 0 || p2.AdmissionID() != "" {
		t.Errorf("patient 10002 should have no admissions: %v", p2.Admissions)
	}
}

func TestClinicalText(t *testing.T) {
	ds, err := LoadDir(writeTestDataset(t))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	text := ds.ClinicalText(ds.Patients()[0])
	for _, want := range []string{
		"Patient gender: F.",
		"Patient age: 52.",
		"Admission diagnosis: CHEST PAIN.",
		"Diagnosis: Essential hypertension.",
		"Medication: Aspirin 81mg.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("clinical text missing %q:\n%s", want, text)
		}
	}
}

func TestICDTitleFallsBackToCode(t *testing.T) {
	ds := &Dataset{icdNames: map[string]string{"I10": "Essential hypertension"}}
	if got := ds.ICDTitle("I10"); got != "Essential hypertension" {
		t.Errorf("ICDTitle(I10) = %q", got)
	}
	if got := ds.ICDTitle("Z999"); got != "Z999" {
		t.Errorf("unknown code should pass through, got %q", got)
	}
}

func TestLoadDirMissingPatientsTable(t *testing.T) {
	if _, err := LoadDir(t.TempDir()); err == nil {
		t.Fatal("expected error for empty dataset directory")
	}
}

func TestRowsFromRecordsShortRows(t *testing.T) {
	rows := rowsFromRecords([][]string{
		{"A", "B", "C"},
		{"1", "2"},
	})
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0]["a"] != "1" || rows[0]["b"] != "2" || rows[0]["c"] != "" {
		t.Errorf("row = %v", rows[0])
	}
}
