package readmission

func strPtr(s string) *string { return &s }

func rec(id, age, admission, outcome string, stay, meds, diags int) Record {
	return Record{
		EncounterID:   id,
		Age:           age,
		Gender:        "Female",
		AdmissionType: admission,
		Insulin:       "No",
		Race:          "Caucasian",
		Stay:          Int(stay),
		Medications:   Int(meds),
		Diagnoses:     Int(diags),
		Outcome:       outcome,
		Readmitted:    IsReadmitted(outcome, DefaultNotReadmitted),
	}
}

// sampleDataset has eight encounters across three age brackets and three
// admission types; three are readmitted.
func sampleDataset() *Dataset {
	records := []Record{
		rec("1001", "[40-50)", "1", "NO", 1, 10, 5),
		rec("1002", "[40-50)", "1", "<30", 3, 14, 7),
		rec("1003", "[60-70)", "2", "NO", 3, 20, 9),
		rec("1004", "[60-70)", "2", ">30", 5, 18, 9),
		rec("1005", "[70-80)", "3", "NO", 7, 25, 9),
		rec("1006", "[70-80)", "1", "NO", 2, 8, 5),
		rec("1007", "[40-50)", "3", "<30", 4, 12, 7),
		rec("1008", "[60-70)", "10", "NO", 6, 16, 9),
	}
	records[1].Gender = "Male"
	records[3].Gender = "Male"
	records[4].Insulin = "Steady"
	records[6].Race = "AfricanAmerican"
	return NewDataset(records)
}

const sampleCSV = `encounter_id,patient_nbr,race,gender,age,admission_type_id,time_in_hospital,num_medications,number_diagnoses,insulin,readmitted
2278392,8222157,Caucasian,Female,[0-10),6,1,1,1,No,NO
149190,55629189,Caucasian,Female,[10-20),1,3,18,9,Up,>30
64410,86047875,AfricanAmerican,Female,[20-30),1,2,13,6,No,NO
500364,82442376,Caucasian,Male,[30-40),1,2,16,7,Up,NO
16680,42519267,Caucasian,Male,[40-50),1,1,8,5,Steady,<30
`
