package mcp

// DefaultCatalog returns the built-in HCM tool table. Each entry is pure
// data (method, path template, parameter schema, response mapping) and the
// dispatcher handles all of them identically.
func DefaultCatalog() []ToolDescriptor {
	return []ToolDescriptor{
		{
			Name: "get_person_id",
			Description: "Get the Oracle HCM PersonId for an employee's worker number. " +
				"Most other tools need the PersonId, so call this first when only the worker number is known.",
			Method: "GET",
			Path:   "/publicWorkers?q=assignments.WorkerNumber='{worker_number}'&onlyData=true&limit=1",
			Params: []Param{
				{
					Name:        "worker_number",
					Type:        TypeString,
					Description: "Employee worker number, e.g. M061230. Case-insensitive.",
					Required:    true,
					In:          InPath,
					Uppercase:   true,
				},
			},
			FrameworkVersion: true,
			Result: ResultSpec{
				Mode: ModePluck,
				Path: []string{"items", "0", "PersonId"},
				Key:  "PersonId",
			},
		},
		{
			Name: "get_absence_balances",
			Description: "Get all current absence balances for an employee by PersonId. " +
				"Balances reflect the system calculation date, not projections.",
			Method: "GET",
			Path:   "/planBalances?onlyData=true&q=personId={person_id};planDisplayStatusFlag=true",
			Params: []Param{
				{
					Name:        "person_id",
					Type:        TypeString,
					Description: "Unique PersonId in Oracle HCM, e.g. 300000578701661",
					Required:    true,
					In:          InPath,
				},
			},
			// planBalances rejects REST-Framework-Version unless an
			// Effective-Of header accompanies it.
			FrameworkVersion: false,
			Result: ResultSpec{
				Mode:      ModeProject,
				ItemsPath: "items",
				Key:       "absence_balances",
				Fields: []FieldSpec{
					{Name: "planName"},
					{Name: "carryOver", From: "multiYearCarryOverFlag"},
					{Name: "planStatus", From: "planStatusMeaning"},
					{Name: "formattedBalance"},
					{Name: "balanceCalculationDate", DateDMY: true},
				},
			},
		},
		{
			Name: "get_absence_types",
			Description: "Get the absence type IDs and employer IDs available for an employee by PersonId. " +
				"Needed as input when projecting absence balances.",
			Method: "GET",
			Path:   "/absenceTypesLOV?onlyData=true&finder=findByWord;PersonId={person_id}",
			Params: []Param{
				{
					Name:        "person_id",
					Type:        TypeString,
					Description: "Unique PersonId in Oracle HCM, e.g. 300000578701661",
					Required:    true,
					In:          InPath,
				},
			},
			FrameworkVersion: true,
			Result: ResultSpec{
				Mode:      ModeProject,
				ItemsPath: "items",
				Key:       "absence_types",
				Fields: []FieldSpec{
					{Name: "AbsenceTypeId"},
					{Name: "EmployerId"},
					{Name: "AbsenceTypeName"},
				},
			},
		},
		{
			Name: "get_projected_balance",
			Description: "Get the projected absence balance for a PersonId and AbsenceTypeId " +
				"as of a date in DD-MM-YYYY format (defaults to today).",
			Method: "POST",
			Path:   "/absences/action/loadProjectedBalance",
			Params: []Param{
				{
					Name:        "person_id",
					Type:        TypeString,
					Description: "Unique PersonId in Oracle HCM, e.g. 300000578701661",
					Required:    true,
					In:          InBody,
				},
				{
					Name:        "absence_type_id",
					Type:        TypeString,
					Description: "The Absence Type ID for the projection, e.g. 300001058681790",
					Required:    true,
					In:          InBody,
				},
				{
					Name:        "legal_entity_id",
					Type:        TypeString,
					Description: "The Legal Entity ID for the projection, e.g. 300000001487001",
					In:          InBody,
				},
				{
					Name:        "balance_as_of_date",
					Type:        TypeDate,
					Description: "Projection date in DD-MM-YYYY format, e.g. 31-12-2025. Defaults to today.",
					In:          InBody,
					Default:     "today",
				},
			},
			BodyTemplate: `{"entry":{"personId":"{person_id}","legalEntityId":"{legal_entity_id}",` +
				`"absenceTypeId":"{absence_type_id}","openEndedFlag":"N",` +
				`"startDate":"{balance_as_of_date}","endDate":"{balance_as_of_date}",` +
				`"uom":"H","duration":7.6,"startDateDuration":7.6,"endDateDuration":7.6}}`,
			FrameworkVersion: true,
			// Projection calculations routinely run close to a minute.
			TimeoutSeconds: 60,
			Result: ResultSpec{
				Mode: ModePluck,
				Path: []string{"result", "formattedProjectedBalance"},
				Key:  "projected_balance",
			},
		},
	}
}
