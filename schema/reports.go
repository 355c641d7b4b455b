package schema

// ============================================================================
// BUILT-IN CATALOG
// ============================================================================
// The static report catalog the engine ships with. A JSONC catalog file
// (see LoadCatalog) can add reports or replace any of these by type.
// ============================================================================

// Report types in the built-in catalog.
const (
	TicketsReport                    = "tickets_report"
	AzureTicketsReport               = "azure_tickets_report"
	TicketsReportStat                = "tickets_report_stat"
	AzureTicketsReportStat           = "azure_tickets_report_stat"
	SCMPRsReport                     = "scm_prs_report"
	SCMCommitsReport                 = "scm_commits_report"
	EffortInvestmentTrendReport      = "effort_investment_trend_report"
	AzureEffortInvestmentTrendReport = "azure_effort_investment_trend_report"
	LeadTimeByStageReport            = "lead_time_by_stage_report"
	HygieneReport                    = "hygiene_report"
	SprintMetricsTrend               = "sprint_metrics_trend"
	TableReport                      = "levelops_table_report"
)

// Effort units.
const (
	UnitTickets     = "tickets_report"
	UnitStoryPoints = "story_point_report"
	UnitCommitCount = "commit_count"
)

// BuiltinReports returns a fresh copy of the built-in catalog.
func BuiltinReports() []Report {
	return []Report{
		ticketsReport(),
		azureTicketsReport(),
		statReport(TicketsReportStat, AppJira, "issue_created_at"),
		statReport(AzureTicketsReportStat, AppAzureDevOps, "workitem_created_at"),
		scmPRsReport(),
		scmCommitsReport(),
		effortInvestmentReport(EffortInvestmentTrendReport, AppJira),
		effortInvestmentReport(AzureEffortInvestmentTrendReport, AppAzureDevOps),
		leadTimeReport(),
		hygieneReport(),
		sprintReport(),
		tableReport(),
	}
}

func chartSettings(defaultAcross string) []FilterDescriptor {
	return []FilterDescriptor{
		setting("across", defaultAcross),
		setting("interval", nil),
		setting("stacks", nil).multiple(),
		setting("visualization", "bar_chart"),
		setting("sort_xaxis", "default_old-latest"),
	}
}

func ticketsReport() Report {
	filters := []FilterDescriptor{
		listFilter("issue_types", "issue_types"),
		listFilter("priorities", "priorities"),
		listFilter("statuses", "statuses"),
		listFilter("assignees", "assignee").partial("assignee").label("Assignee"),
		listFilter("projects", "projects").partial("project"),
		listFilter("components", "components").partial("component"),
		listFilter("labels", "labels"),
		listFilter("epics", "epics"),
		customField("customfield_10010", "Team"),
		customField("customfield_10020", "Sprint Goal"),
		{ID: "summary", BEKey: "summary", Tab: TabFilters, Capabilities: Capabilities{Deletable: true, PartialMatch: true}, Debounced: true},
		timeFilter("issue_created_at", "issue_created_at"),
		timeFilter("issue_resolved_at", "issue_resolved_at"),
		timeFilter("issue_updated_at", "issue_updated_at"),
	}
	filters = append(filters, chartSettings("assignee")...)
	filters = append(filters, setting("metric", "ticket").multiple())
	return Report{
		Type:             TicketsReport,
		Family:           FamilyTimeBucketed,
		Application:      AppJira,
		Filters:          filters,
		MultiSortMetrics: []string{"ticket", "story_point"},
	}
}

func azureTicketsReport() Report {
	filters := []FilterDescriptor{
		listFilter("workitem_types", "workitem_types"),
		listFilter("workitem_priorities", "workitem_priorities"),
		listFilter("workitem_statuses", "workitem_statuses"),
		listFilter("assignees", "workitem_assignees").partial("workitem_assignee"),
		listFilter("projects", "workitem_projects").partial("workitem_project"),
		customField("Custom.Team", "Team"),
		timeFilter("workitem_created_at", "workitem_created_at"),
		timeFilter("workitem_resolved_at", "workitem_resolved_at"),
		timeFilter("workitem_updated_at", "workitem_updated_at"),
	}
	filters = append(filters, chartSettings("assignee")...)
	filters = append(filters, setting("metric", "ticket").multiple())
	return Report{
		Type:             AzureTicketsReport,
		Family:           FamilyTimeBucketed,
		Application:      AppAzureDevOps,
		Filters:          filters,
		MultiSortMetrics: []string{"ticket", "story_point"},
	}
}

func statReport(reportType, app, fallbackTimeKey string) Report {
	timePeriod := timeFilter("time_period", fallbackTimeKey)
	timePeriod.KeyFromAcross = true
	filters := []FilterDescriptor{
		setting("across", nil),
		timePeriod,
		listFilter("projects", "projects").partial("project"),
		listFilter("statuses", "statuses"),
		setting("metric", "total_tickets"),
	}
	return Report{
		Type:        reportType,
		Family:      FamilyStat,
		Application: app,
		Filters:     filters,
	}
}

func scmPRsReport() Report {
	filters := []FilterDescriptor{
		listFilter("repo_ids", "repo_ids").partial("repo_id"),
		listFilter("creators", "creators").partial("creator"),
		listFilter("reviewers", "reviewers").partial("reviewer"),
		listFilter("labels", "labels"),
		listFilter("target_branches", "target_branches").partial("target_branch"),
		timeFilter("pr_created_at", "pr_created_at"),
		timeFilter("pr_closed_at", "pr_closed_at"),
	}
	filters = append(filters, chartSettings("repo_id")...)
	return Report{Type: SCMPRsReport, Family: FamilySCM, Filters: filters}
}

func scmCommitsReport() Report {
	filters := []FilterDescriptor{
		listFilter("repo_ids", "repo_ids").partial("repo_id"),
		listFilter("authors", "authors").partial("author"),
		listFilter("committers", "committers").partial("committer"),
		listFilter("file_types", "file_types"),
		timeFilter("committed_at", "committed_at"),
	}
	filters = append(filters, chartSettings("repo_id")...)
	return Report{Type: SCMCommitsReport, Family: FamilySCM, Filters: filters}
}

func effortInvestmentReport(reportType, app string) Report {
	ims := setting("issue_management_system", app)
	filters := []FilterDescriptor{
		ims,
		setting("effort_unit", UnitTickets),
		setting("ticket_categorization_scheme", nil),
		timeFilter("committed_at", "committed_at"),
		timeFilter("issue_resolved_at", "issue_resolved_at").only(AppJira),
		timeFilter("workitem_resolved_at", "workitem_resolved_at").only(AppAzureDevOps),
		listFilter("projects", "projects").partial("project").only(AppJira),
		listFilter("issue_types", "issue_types").only(AppJira),
		customField("customfield_10010", "Team").only(AppJira),
		listFilter("workitem_projects", "workitem_projects").partial("workitem_project").only(AppAzureDevOps),
		listFilter("workitem_types", "workitem_types").only(AppAzureDevOps),
		customField("Custom.Team", "Team").only(AppAzureDevOps),
		setting("interval", "month"),
		setting("unit_label", nil).debounced(),
	}
	resolvedKey := "issue_resolved_at"
	if app == AppAzureDevOps {
		resolvedKey = "workitem_resolved_at"
	}
	return Report{
		Type:        reportType,
		Family:      FamilyEffortInvestment,
		Application: app,
		Filters:     filters,
		SystemVariants: map[string]string{
			AppJira:        EffortInvestmentTrendReport,
			AppAzureDevOps: AzureEffortInvestmentTrendReport,
		},
		UnitTimeKeys: map[string]string{
			UnitCommitCount: "committed_at",
			"":              resolvedKey,
		},
	}
}

func leadTimeReport() Report {
	filters := []FilterDescriptor{
		listFilter("projects", "projects").partial("project"),
		listFilter("issue_types", "issue_types"),
		timeFilter("issue_resolved_at", "issue_resolved_at").required("lead_time_date"),
		timeFilter("pr_merged_at", "pr_merged_at").required("lead_time_date"),
		timeFilter("released_in", "released_in").required("lead_time_date"),
		setting("across", "velocity"),
		setting("interval", nil),
		setting("metric", "mean").multiple(),
		setting("sort_xaxis", "default_old-latest"),
		setting("sort", nil),
	}
	return Report{
		Type:             LeadTimeByStageReport,
		Family:           FamilyLeadTime,
		Application:      AppJira,
		Filters:          filters,
		MultiSortMetrics: []string{"mean", "median"},
	}
}

func hygieneReport() Report {
	filters := []FilterDescriptor{
		listFilter("projects", "projects").partial("project"),
		listFilter("assignees", "assignee").partial("assignee"),
		listFilter("hygiene_types", "hygiene_types"),
		{ID: "idle", BEKey: "idle", Tab: TabSettings, DefaultValue: float64(30), Capabilities: Capabilities{Deletable: true}},
		{ID: "poor_description", BEKey: "poor_description", Tab: TabSettings, DefaultValue: float64(10), Capabilities: Capabilities{Deletable: true}},
		setting("visualization", "scatter_chart"),
	}
	return Report{
		Type:        HygieneReport,
		Family:      FamilyHygiene,
		Application: AppJira,
		Filters:     filters,
		WeightKeys: []string{
			"IDLE", "POOR_DESCRIPTION", "NO_DUE_DATE", "NO_ASSIGNEE",
			"NO_COMPONENTS", "MISSED_END_TIME",
		},
	}
}

func sprintReport() Report {
	filters := []FilterDescriptor{
		listFilter("sprint", "sprint").partial("sprint").debounced(),
		listFilter("projects", "projects").partial("project"),
		timeFilter("completed_at", "completed_at"),
		setting("last_sprint", false).inMetadata(),
		setting("interval", "week"),
		setting("metric", "commit_done_ratio").multiple(),
		setting("stacks", nil).multiple(),
		setting("stack_size", float64(10)).debounced(),
		setting("visualization", "bar_chart"),
	}
	return Report{
		Type:        SprintMetricsTrend,
		Family:      FamilySprint,
		Application: AppJira,
		Filters:     filters,
	}
}

func tableReport() Report {
	filters := []FilterDescriptor{
		setting("table_id", nil).inMetadata(),
		setting("visualization", "bar_chart"),
		setting("max_records", float64(20)).debounced(),
	}
	return Report{Type: TableReport, Family: FamilyTable, Filters: filters}
}
